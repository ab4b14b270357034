package io

import (
	"os"
	"sync"

	"github.com/cyverse/build-cache/commons"
	log "github.com/sirupsen/logrus"
)

// WriteStream is a byte sink for one artifact of a transaction.
// It counts bytes written so the transaction can verify the declared size.
type WriteStream struct {
	kind         ArtifactKind
	path         string
	declaredSize int64

	file         *os.File
	bytesWritten int64
	closed       bool
	pendingError error
	done         chan struct{}
	mutex        sync.Mutex
}

// newWriteStream creates a temp file exclusively and wraps it
func newWriteStream(kind ArtifactKind, path string, declaredSize int64) (*WriteStream, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, commons.NewIOFaultError("create", path, err)
	}

	return &WriteStream{
		kind:         kind,
		path:         path,
		declaredSize: declaredSize,

		file: file,
		done: make(chan struct{}),
	}, nil
}

// GetKind returns artifact kind of the stream
func (stream *WriteStream) GetKind() ArtifactKind {
	return stream.kind
}

// GetPath returns temp file path
func (stream *WriteStream) GetPath() string {
	return stream.path
}

// GetDeclaredSize returns declared size
func (stream *WriteStream) GetDeclaredSize() int64 {
	return stream.declaredSize
}

// GetBytesWritten returns bytes written so far
func (stream *WriteStream) GetBytesWritten() int64 {
	stream.mutex.Lock()
	defer stream.mutex.Unlock()

	return stream.bytesWritten
}

// Write writes data
func (stream *WriteStream) Write(data []byte) (int, error) {
	logger := log.WithFields(log.Fields{
		"package":  "io",
		"struct":   "WriteStream",
		"function": "Write",
	})

	stream.mutex.Lock()
	defer stream.mutex.Unlock()

	if stream.closed {
		return 0, os.ErrClosed
	}

	n, err := stream.file.Write(data)
	stream.bytesWritten += int64(n)
	if err != nil {
		ioErr := commons.NewIOFaultError("write", stream.path, err)
		if stream.pendingError == nil {
			stream.pendingError = ioErr
		}

		logger.WithError(err).Errorf("failed to write data - %s, length %d", stream.path, len(data))
		return n, ioErr
	}

	return n, nil
}

// Close closes the stream and signals the transaction. Closing twice is a no-op.
func (stream *WriteStream) Close() error {
	stream.mutex.Lock()
	defer stream.mutex.Unlock()

	if stream.closed {
		return nil
	}

	stream.closed = true
	defer close(stream.done)

	err := stream.file.Close()
	if err != nil {
		ioErr := commons.NewIOFaultError("close", stream.path, err)
		if stream.pendingError == nil {
			stream.pendingError = ioErr
		}
		return ioErr
	}

	return nil
}

// Done returns a channel that is closed when the stream is closed
func (stream *WriteStream) Done() <-chan struct{} {
	return stream.done
}

// GetPendingError returns the first write or close error
func (stream *WriteStream) GetPendingError() error {
	stream.mutex.Lock()
	defer stream.mutex.Unlock()

	return stream.pendingError
}

// verify must be called after the stream is closed
func (stream *WriteStream) verify() error {
	stream.mutex.Lock()
	defer stream.mutex.Unlock()

	if stream.pendingError != nil {
		return stream.pendingError
	}

	if stream.bytesWritten != stream.declaredSize {
		return commons.NewSizeMismatchError(string(stream.kind), stream.declaredSize, stream.bytesWritten)
	}

	return nil
}
