package service

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/cyverse/build-cache/commons"
	"github.com/cyverse/build-cache/service/io"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	config := &ServerConfig{
		CacheRootPath:      t.TempDir(),
		CleanupExpireAfter: 24 * time.Hour,
		CleanupDryRun:      false,
		StatCacheTimeout:   time.Minute,
	}

	server, err := NewServer(config)
	require.NoError(t, err)
	t.Cleanup(server.Release)
	return server
}

func testKey() io.CacheEntryKey {
	return io.NewCacheEntryKey([]byte{0x01, 0x02, 0x03, 0x04}, []byte{0xaa, 0xbb, 0xcc, 0xdd})
}

func putTestEntry(t *testing.T, server *Server, key io.CacheEntryKey, kind io.ArtifactKind, data []byte) {
	t.Helper()

	txn := server.BeginTransaction(key)
	stream, err := txn.OpenWriteStream(kind, int64(len(data)))
	require.NoError(t, err)
	_, err = stream.Write(data)
	require.NoError(t, err)
	require.NoError(t, stream.Close())

	result, err := server.Commit(context.Background(), txn)
	require.NoError(t, err)
	require.Len(t, result.Committed, 1)
}

func TestServerStatCacheInvalidatedOnCommit(t *testing.T) {
	server := newTestServer(t)
	key := testKey()

	_, err := server.Stat(io.ArtifactKindData, key)
	assert.True(t, commons.IsNotFoundError(err))

	putTestEntry(t, server, key, io.ArtifactKindData, []byte("12345"))

	entry, err := server.Stat(io.ArtifactKindData, key)
	require.NoError(t, err)
	assert.Equal(t, int64(5), entry.Size)
	assert.NotNil(t, server.statCache.GetEntryCache(io.ArtifactKindData, key))

	putTestEntry(t, server, key, io.ArtifactKindData, []byte("1234567890"))
	assert.Nil(t, server.statCache.GetEntryCache(io.ArtifactKindData, key))

	entry, err = server.Stat(io.ArtifactKindData, key)
	require.NoError(t, err)
	assert.Equal(t, int64(10), entry.Size)
}

func TestServerStatAfterExternalRemove(t *testing.T) {
	server := newTestServer(t)
	key := testKey()

	putTestEntry(t, server, key, io.ArtifactKindData, []byte("12345"))

	entry, err := server.Stat(io.ArtifactKindData, key)
	require.NoError(t, err)
	require.NotNil(t, server.statCache.GetEntryCache(io.ArtifactKindData, key))

	// another process sharing the root deletes the file
	require.NoError(t, os.Remove(entry.Path))

	_, err = server.Stat(io.ArtifactKindData, key)
	assert.True(t, commons.IsNotFoundError(err))
	assert.Nil(t, server.statCache.GetEntryCache(io.ArtifactKindData, key))
}

func TestServerStatAfterExternalReplace(t *testing.T) {
	server := newTestServer(t)
	key := testKey()

	putTestEntry(t, server, key, io.ArtifactKindData, []byte("12345"))

	entry, err := server.Stat(io.ArtifactKindData, key)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(entry.Path, []byte("1234567890"), 0644))

	entry, err = server.Stat(io.ArtifactKindData, key)
	require.NoError(t, err)
	assert.Equal(t, int64(10), entry.Size)
}

func TestServerStatReturnsCopy(t *testing.T) {
	server := newTestServer(t)
	key := testKey()

	putTestEntry(t, server, key, io.ArtifactKindInfo, []byte("info"))

	entry, err := server.Stat(io.ArtifactKindInfo, key)
	require.NoError(t, err)
	path := entry.Path
	entry.Size = 999

	cached, err := server.Stat(io.ArtifactKindInfo, key)
	require.NoError(t, err)
	cached.Size = 999
	cached.Path = "/nowhere"

	stored := server.statCache.GetEntryCache(io.ArtifactKindInfo, key)
	require.NotNil(t, stored)
	assert.Equal(t, int64(4), stored.Size)
	assert.Equal(t, path, stored.Path)

	again, err := server.Stat(io.ArtifactKindInfo, key)
	require.NoError(t, err)
	assert.Equal(t, int64(4), again.Size)
	assert.Equal(t, path, again.Path)
}

func TestServerStatCacheDisabledByDefault(t *testing.T) {
	config := NewServerConfig(commons.NewDefaultConfig())
	config.CacheRootPath = t.TempDir()

	server, err := NewServer(config)
	require.NoError(t, err)
	defer server.Release()

	assert.Nil(t, server.statCache)
}

func TestServerCleanupClearsStatCache(t *testing.T) {
	server := newTestServer(t)
	key := testKey()

	putTestEntry(t, server, key, io.ArtifactKindInfo, []byte("info"))

	entry, err := server.Stat(io.ArtifactKindInfo, key)
	require.NoError(t, err)

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(entry.Path, old, old))

	result, err := server.Cleanup(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{entry.Path}, result.DeletedPaths)
	assert.Equal(t, result, server.GetLastCleanupResult())

	_, err = server.Stat(io.ArtifactKindInfo, key)
	assert.True(t, commons.IsNotFoundError(err))
}

func TestServerReadStream(t *testing.T) {
	server := newTestServer(t)
	key := testKey()

	putTestEntry(t, server, key, io.ArtifactKindResource, []byte("resource"))

	stream, err := server.OpenReadStream(io.ArtifactKindResource, key)
	require.NoError(t, err)
	defer stream.Close()

	buffer := make([]byte, 64)
	n, err := stream.Read(buffer)
	require.NoError(t, err)
	assert.Equal(t, "resource", string(buffer[:n]))
	assert.Equal(t, int64(8), stream.GetSize())

	_, err = server.OpenReadStream(io.ArtifactKindInfo, key)
	assert.True(t, commons.IsNotFoundError(err))
}

func TestServerCleanupNotOverlapped(t *testing.T) {
	server := newTestServer(t)
	putTestEntry(t, server, testKey(), io.ArtifactKindData, []byte("data"))

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	blocking := io.CleanupEventHandlerFunc(func(event *io.CleanupEvent) {
		once.Do(func() {
			close(started)
			<-release
		})
	})

	done := make(chan error, 1)
	go func() {
		options := &io.CleanupOptions{ExpireAfter: time.Hour, DryRun: true}
		_, err := server.Cleanup(context.Background(), options, blocking)
		done <- err
	}()

	<-started
	_, err := server.Cleanup(context.Background(), &io.CleanupOptions{ExpireAfter: time.Hour}, nil)
	assert.True(t, IsCleanupInProgressError(err))

	close(release)
	assert.NoError(t, <-done)
}

func TestServerCleanupInvalidOptions(t *testing.T) {
	server := newTestServer(t)

	_, err := server.Cleanup(context.Background(), io.NewDefaultCleanupOptions(), nil)
	assert.True(t, commons.IsInvalidArgumentError(err))
	assert.Nil(t, server.GetLastCleanupResult())
}
