package io

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cyverse/build-cache/commons"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDiskCache(t *testing.T, options ...DiskCacheOption) *DiskCache {
	t.Helper()

	cache, err := NewDiskCache(t.TempDir(), options...)
	require.NoError(t, err)
	return cache
}

func writeTestEntry(t *testing.T, cache *DiskCache, key CacheEntryKey, artifacts map[ArtifactKind][]byte) *CommitResult {
	t.Helper()

	txn := cache.BeginTransaction(key)
	for _, kind := range GetArtifactKinds() {
		data, ok := artifacts[kind]
		if !ok {
			continue
		}

		stream, err := txn.OpenWriteStream(kind, int64(len(data)))
		require.NoError(t, err)

		_, err = stream.Write(data)
		require.NoError(t, err)
		require.NoError(t, stream.Close())
	}

	result, err := cache.Commit(context.Background(), txn)
	require.NoError(t, err)
	return result
}

func readTestEntry(t *testing.T, cache *DiskCache, kind ArtifactKind, key CacheEntryKey) []byte {
	t.Helper()

	stream, err := cache.OpenReadStream(kind, key)
	require.NoError(t, err)
	defer stream.Close()

	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	return data
}

func TestNewDiskCache(t *testing.T) {
	root := t.TempDir()

	cache, err := NewDiskCache(root)
	require.NoError(t, err)
	assert.Equal(t, root, cache.GetRootPath())

	info, err := os.Stat(filepath.Join(root, TempDirName))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = NewDiskCache("")
	assert.True(t, commons.IsInvalidArgumentError(err))
}

func TestDiskCacheRoundTrip(t *testing.T) {
	cache := newTestDiskCache(t)
	key := testKey()

	artifacts := map[ArtifactKind][]byte{
		ArtifactKindInfo:     []byte("info-bytes"),
		ArtifactKindData:     bytes.Repeat([]byte{0x42}, 4096),
		ArtifactKindResource: []byte("resource"),
	}

	result := writeTestEntry(t, cache, key, artifacts)
	assert.Len(t, result.Committed, 3)
	assert.Empty(t, result.Failed)

	for kind, data := range artifacts {
		info, err := cache.Stat(kind, key)
		require.NoError(t, err)
		assert.Equal(t, int64(len(data)), info.Size)

		expectedPath, err := cache.GetCacheFilePath(kind, key)
		require.NoError(t, err)
		assert.Equal(t, expectedPath, info.Path)

		assert.Equal(t, data, readTestEntry(t, cache, kind, key))
	}

	// temp files were moved away
	entries, err := os.ReadDir(cache.GetTempRootPath())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDiskCacheShardLayout(t *testing.T) {
	cache := newTestDiskCache(t)
	key := testKey()

	writeTestEntry(t, cache, key, map[ArtifactKind][]byte{
		ArtifactKindData: []byte("data"),
	})

	path := filepath.Join(cache.GetRootPath(), "ab", "abcd0102030405060708090a0b0c0d0e-112233445566778899aabbccddeeff00.bin")
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestDiskCacheNotFound(t *testing.T) {
	cache := newTestDiskCache(t)
	key := testKey()

	_, err := cache.Stat(ArtifactKindInfo, key)
	assert.True(t, commons.IsNotFoundError(err))

	_, err = cache.OpenReadStream(ArtifactKindInfo, key)
	assert.True(t, commons.IsNotFoundError(err))

	// partial entry: only data committed
	writeTestEntry(t, cache, key, map[ArtifactKind][]byte{
		ArtifactKindData: []byte("data"),
	})

	_, err = cache.Stat(ArtifactKindData, key)
	assert.NoError(t, err)

	_, err = cache.Stat(ArtifactKindResource, key)
	assert.True(t, commons.IsNotFoundError(err))
}

func TestDiskCacheInvalidKind(t *testing.T) {
	cache := newTestDiskCache(t)

	_, err := cache.Stat(ArtifactKind("blob"), testKey())
	assert.True(t, commons.IsInvalidArgumentError(err))
}

func TestDiskCacheOverwrite(t *testing.T) {
	cache := newTestDiskCache(t)
	key := testKey()

	writeTestEntry(t, cache, key, map[ArtifactKind][]byte{
		ArtifactKindData: []byte("first version"),
	})
	writeTestEntry(t, cache, key, map[ArtifactKind][]byte{
		ArtifactKindData: []byte("second"),
	})

	assert.Equal(t, []byte("second"), readTestEntry(t, cache, ArtifactKindData, key))
}

func TestDiskCachePartialCommit(t *testing.T) {
	committed := map[ArtifactKind]error{}
	var mutex sync.Mutex

	cache := newTestDiskCache(t, WithCommitHandler(func(key CacheEntryKey, file *TransactionFile, err error) {
		mutex.Lock()
		defer mutex.Unlock()

		committed[file.Kind] = err
	}))
	key := testKey()

	// a non-empty directory in the way makes the data move fail
	dataPath, err := cache.GetCacheFilePath(ArtifactKindData, key)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(dataPath, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dataPath, "blocker"), []byte("x"), 0644))

	txn := cache.BeginTransaction(key)
	for kind, data := range map[ArtifactKind][]byte{
		ArtifactKindInfo: []byte("info"),
		ArtifactKindData: []byte("data"),
	} {
		stream, err := txn.OpenWriteStream(kind, int64(len(data)))
		require.NoError(t, err)
		_, err = stream.Write(data)
		require.NoError(t, err)
		require.NoError(t, stream.Close())
	}

	result, err := cache.Commit(context.Background(), txn)
	assert.True(t, commons.IsIOFaultError(err))
	require.NotNil(t, result)

	require.Len(t, result.Committed, 1)
	assert.Equal(t, ArtifactKindInfo, result.Committed[0].Kind)
	assert.Contains(t, result.Failed, ArtifactKindData)

	assert.Equal(t, []byte("info"), readTestEntry(t, cache, ArtifactKindInfo, key))

	_, err = cache.Stat(ArtifactKindData, key)
	assert.True(t, commons.IsNotFoundError(err))

	assert.Len(t, committed, 2)
	assert.NoError(t, committed[ArtifactKindInfo])
	assert.Error(t, committed[ArtifactKindData])

	assert.Equal(t, TransactionStateCommitted, txn.GetState())
}

func TestDiskCacheCommitForeignTransaction(t *testing.T) {
	cache1 := newTestDiskCache(t)
	cache2 := newTestDiskCache(t)

	txn := cache1.BeginTransaction(testKey())
	_, err := cache2.Commit(context.Background(), txn)
	assert.True(t, commons.IsInvalidArgumentError(err))
}

func TestDiskCacheConcurrentReadWrite(t *testing.T) {
	cache := newTestDiskCache(t)
	key := testKey()

	versions := [][]byte{
		bytes.Repeat([]byte{'a'}, 1000),
		bytes.Repeat([]byte{'b'}, 3000),
	}

	writeTestEntry(t, cache, key, map[ArtifactKind][]byte{ArtifactKindData: versions[0]})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()

		for i := 0; i < 50; i++ {
			data := versions[i%2]
			txn := cache.BeginTransaction(key)
			stream, err := txn.OpenWriteStream(ArtifactKindData, int64(len(data)))
			if !assert.NoError(t, err) {
				return
			}
			stream.Write(data)
			stream.Close()

			_, err = cache.Commit(context.Background(), txn)
			if !assert.NoError(t, err) {
				return
			}
		}
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for ctx.Err() == nil {
				stream, err := cache.OpenReadStream(ArtifactKindData, key)
				if !assert.NoError(t, err) {
					return
				}

				data, err := io.ReadAll(stream)
				stream.Close()
				if !assert.NoError(t, err) {
					return
				}

				if len(data) != len(versions[0]) && len(data) != len(versions[1]) {
					assert.Failf(t, "partial file observed", "length %d", len(data))
					return
				}
				assert.Equal(t, len(data), bytes.Count(data, data[:1]))
			}
		}()
	}

	wg.Wait()
}
