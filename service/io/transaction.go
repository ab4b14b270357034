package io

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cyverse/build-cache/commons"
	"github.com/rs/xid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// TransactionState is a lifecycle state of a transaction
type TransactionState int

const (
	TransactionStateEmpty TransactionState = iota
	TransactionStateWriting
	TransactionStateFinalized
	TransactionStateCommitted
	TransactionStateFailed
)

func (state TransactionState) String() string {
	switch state {
	case TransactionStateEmpty:
		return "empty"
	case TransactionStateWriting:
		return "writing"
	case TransactionStateFinalized:
		return "finalized"
	case TransactionStateCommitted:
		return "committed"
	case TransactionStateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(state))
	}
}

// TransactionFile is a verified temp file of a transaction
type TransactionFile struct {
	Kind ArtifactKind
	Path string
	Size int64
}

// DiskTransaction is a Transaction that writes temp files into the store's work area
type DiskTransaction struct {
	tempRootPath string
	key          CacheEntryKey

	streams    map[ArtifactKind]*WriteStream
	files      []*TransactionFile
	state      TransactionState
	finalizing bool
	mutex      sync.Mutex
}

func newDiskTransaction(tempRootPath string, key CacheEntryKey) *DiskTransaction {
	return &DiskTransaction{
		tempRootPath: tempRootPath,
		key:          key,

		streams: map[ArtifactKind]*WriteStream{},
		files:   []*TransactionFile{},
		state:   TransactionStateEmpty,
	}
}

// GetKey returns the cache entry key
func (txn *DiskTransaction) GetKey() CacheEntryKey {
	return txn.key
}

// GetState returns the current state
func (txn *DiskTransaction) GetState() TransactionState {
	txn.mutex.Lock()
	defer txn.mutex.Unlock()

	return txn.state
}

// OpenWriteStream opens a write stream for the kind. Each kind can be opened once.
func (txn *DiskTransaction) OpenWriteStream(kind ArtifactKind, declaredSize int64) (*WriteStream, error) {
	logger := log.WithFields(log.Fields{
		"package":  "io",
		"struct":   "DiskTransaction",
		"function": "OpenWriteStream",
	})

	if !kind.IsValid() {
		return nil, commons.NewInvalidArgumentErrorf("unrecognized artifact kind %q", string(kind))
	}

	if declaredSize <= 0 {
		return nil, commons.NewInvalidArgumentErrorf("declared size must be a positive integer, got %d", declaredSize)
	}

	txn.mutex.Lock()
	defer txn.mutex.Unlock()

	if txn.state != TransactionStateEmpty && txn.state != TransactionStateWriting {
		return nil, commons.NewInvalidArgumentErrorf("cannot open a stream on %s transaction", txn.state)
	}

	if txn.finalizing {
		return nil, commons.NewInvalidArgumentError("cannot open a stream while finalizing")
	}

	if _, ok := txn.streams[kind]; ok {
		return nil, commons.NewInvalidArgumentErrorf("stream for %s is already opened", kind)
	}

	tempPath := filepath.Join(txn.tempRootPath, fmt.Sprintf("%s.%s.tmp", xid.New().String(), kind.Extension()))

	stream, err := newWriteStream(kind, tempPath, declaredSize)
	if err != nil {
		logger.WithError(err).Errorf("failed to open a write stream for %s, %s", txn.key.String(), kind)
		return nil, err
	}

	txn.streams[kind] = stream
	txn.state = TransactionStateWriting

	logger.Debugf("Opened a write stream for %s, %s - %s (%d bytes)", txn.key.String(), kind, tempPath, declaredSize)
	return stream, nil
}

// Finalize waits for all opened streams to be closed and verifies their sizes.
// Finalizing a finalized transaction does nothing. Abort may be called while waiting.
// Temp files of a failed transaction are removed.
func (txn *DiskTransaction) Finalize(ctx context.Context) error {
	logger := log.WithFields(log.Fields{
		"package":  "io",
		"struct":   "DiskTransaction",
		"function": "Finalize",
	})

	streams, err := txn.beginFinalize()
	if err != nil {
		return err
	}

	if streams == nil {
		// already finalized
		return nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, stream := range streams {
		stream := stream
		group.Go(func() error {
			select {
			case <-stream.Done():
			case <-groupCtx.Done():
				return groupCtx.Err()
			}

			return stream.verify()
		})
	}

	waitErr := group.Wait()

	txn.mutex.Lock()
	defer txn.mutex.Unlock()

	txn.finalizing = false

	if txn.state == TransactionStateFailed {
		// aborted while waiting
		return commons.NewInvalidArgumentError("transaction is aborted while finalizing")
	}

	if waitErr != nil {
		txn.releaseStreams()
		txn.state = TransactionStateFailed
		logger.WithError(waitErr).Errorf("failed to finalize a transaction for %s", txn.key.String())
		return waitErr
	}

	files := make([]*TransactionFile, 0, len(streams))
	for _, stream := range streams {
		files = append(files, &TransactionFile{
			Kind: stream.GetKind(),
			Path: stream.GetPath(),
			Size: stream.GetDeclaredSize(),
		})
	}

	txn.files = files
	txn.state = TransactionStateFinalized
	return nil
}

// beginFinalize returns streams to wait for in kind order, or nil if finalized already
func (txn *DiskTransaction) beginFinalize() ([]*WriteStream, error) {
	txn.mutex.Lock()
	defer txn.mutex.Unlock()

	switch txn.state {
	case TransactionStateFinalized:
		return nil, nil
	case TransactionStateCommitted, TransactionStateFailed:
		return nil, commons.NewInvalidArgumentErrorf("cannot finalize %s transaction", txn.state)
	}

	if txn.finalizing {
		return nil, commons.NewInvalidArgumentError("transaction is already being finalized")
	}

	txn.finalizing = true

	streams := []*WriteStream{}
	for _, kind := range GetArtifactKinds() {
		if stream, ok := txn.streams[kind]; ok {
			streams = append(streams, stream)
		}
	}
	return streams, nil
}

// GetFiles returns verified files. Empty before finalize.
func (txn *DiskTransaction) GetFiles() []*TransactionFile {
	txn.mutex.Lock()
	defer txn.mutex.Unlock()

	files := make([]*TransactionFile, len(txn.files))
	copy(files, txn.files)
	return files
}

// Abort closes all streams and removes temp files. The transaction can't be used afterwards.
func (txn *DiskTransaction) Abort() error {
	txn.mutex.Lock()
	defer txn.mutex.Unlock()

	if txn.state == TransactionStateCommitted {
		return commons.NewInvalidArgumentError("cannot abort committed transaction")
	}

	errs := txn.releaseStreams()

	txn.files = []*TransactionFile{}
	txn.state = TransactionStateFailed

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// releaseStreams closes streams and removes their temp files. Must be called with the mutex held.
func (txn *DiskTransaction) releaseStreams() []error {
	logger := log.WithFields(log.Fields{
		"package":  "io",
		"struct":   "DiskTransaction",
		"function": "releaseStreams",
	})

	errs := []error{}
	for _, stream := range txn.streams {
		stream.Close()

		err := os.Remove(stream.GetPath())
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.WithError(err).Warnf("failed to remove temp file %s", stream.GetPath())
			errs = append(errs, commons.NewIOFaultError("remove", stream.GetPath(), err))
		}
	}
	return errs
}

func (txn *DiskTransaction) setCommitted() {
	txn.mutex.Lock()
	defer txn.mutex.Unlock()

	txn.state = TransactionStateCommitted
}
