package io

import (
	"io"
	"os"
	"sync"
)

// ReadStream is a single-pass reader of a committed cache file
type ReadStream struct {
	kind ArtifactKind
	key  CacheEntryKey
	path string
	size int64

	file      *os.File
	bytesRead int64
	closed    bool
	mutex     sync.Mutex
}

func newReadStream(kind ArtifactKind, key CacheEntryKey, path string, file *os.File, size int64) *ReadStream {
	return &ReadStream{
		kind: kind,
		key:  key,
		path: path,
		size: size,
		file: file,
	}
}

// GetKind returns artifact kind
func (stream *ReadStream) GetKind() ArtifactKind {
	return stream.kind
}

// GetKey returns cache entry key
func (stream *ReadStream) GetKey() CacheEntryKey {
	return stream.key
}

// GetPath returns the file path
func (stream *ReadStream) GetPath() string {
	return stream.path
}

// GetSize returns file size at open time
func (stream *ReadStream) GetSize() int64 {
	return stream.size
}

// GetBytesRead returns bytes read so far
func (stream *ReadStream) GetBytesRead() int64 {
	stream.mutex.Lock()
	defer stream.mutex.Unlock()

	return stream.bytesRead
}

// Read reads data
func (stream *ReadStream) Read(buffer []byte) (int, error) {
	stream.mutex.Lock()
	defer stream.mutex.Unlock()

	if stream.closed {
		return 0, os.ErrClosed
	}

	n, err := stream.file.Read(buffer)
	stream.bytesRead += int64(n)
	return n, err
}

// WriteTo writes all remaining data to the writer
func (stream *ReadStream) WriteTo(writer io.Writer) (int64, error) {
	stream.mutex.Lock()
	defer stream.mutex.Unlock()

	if stream.closed {
		return 0, os.ErrClosed
	}

	n, err := io.Copy(writer, stream.file)
	stream.bytesRead += n
	return n, err
}

// Close releases the file handle
func (stream *ReadStream) Close() error {
	stream.mutex.Lock()
	defer stream.mutex.Unlock()

	if stream.closed {
		return nil
	}

	stream.closed = true
	return stream.file.Close()
}
