package io

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cyverse/build-cache/commons"
	"github.com/cyverse/build-cache/utils"
)

const (
	// ShardPrefixLength is the number of leading filename characters used as a shard directory name
	ShardPrefixLength int = 2
)

// ArtifactKind is a role of a file composing one cache entry
type ArtifactKind string

const (
	ArtifactKindInfo     ArtifactKind = "info"
	ArtifactKindData     ArtifactKind = "data"
	ArtifactKindResource ArtifactKind = "resource"
)

var (
	artifactKindExtensions = map[ArtifactKind]string{
		ArtifactKindInfo:     "info",
		ArtifactKindData:     "bin",
		ArtifactKindResource: "resource",
	}
)

// GetArtifactKinds returns all artifact kinds in a fixed order
func GetArtifactKinds() []ArtifactKind {
	return []ArtifactKind{ArtifactKindInfo, ArtifactKindData, ArtifactKindResource}
}

// ParseArtifactKind parses a kind name or a file extension
func ParseArtifactKind(s string) (ArtifactKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for kind, ext := range artifactKindExtensions {
		if s == string(kind) || s == ext {
			return kind, nil
		}
	}

	return "", commons.NewInvalidArgumentErrorf("unrecognized artifact kind %q", s)
}

// IsValid checks if the kind is one of recognized kinds
func (kind ArtifactKind) IsValid() bool {
	_, ok := artifactKindExtensions[kind]
	return ok
}

// Extension returns file extension for the kind
func (kind ArtifactKind) Extension() string {
	return artifactKindExtensions[kind]
}

// CacheEntryKey identifies a cache entry
type CacheEntryKey struct {
	EntryID     []byte
	ContentHash []byte
}

// NewCacheEntryKey creates a new CacheEntryKey
func NewCacheEntryKey(entryID []byte, contentHash []byte) CacheEntryKey {
	return CacheEntryKey{
		EntryID:     entryID,
		ContentHash: contentHash,
	}
}

// ParseCacheEntryKey parses hex encoded entry id and content hash
func ParseCacheEntryKey(entryIDHex string, contentHashHex string) (CacheEntryKey, error) {
	entryID, err := utils.ParseHexString(entryIDHex)
	if err != nil {
		return CacheEntryKey{}, commons.NewInvalidArgumentErrorf("malformed entry id %q", entryIDHex)
	}

	contentHash, err := utils.ParseHexString(contentHashHex)
	if err != nil {
		return CacheEntryKey{}, commons.NewInvalidArgumentErrorf("malformed content hash %q", contentHashHex)
	}

	return NewCacheEntryKey(entryID, contentHash), nil
}

// String returns "<hex(entryId)>-<hex(contentHash)>"
func (key CacheEntryKey) String() string {
	return fmt.Sprintf("%s-%s", utils.MakeHexString(key.EntryID), utils.MakeHexString(key.ContentHash))
}

// Validate checks if the key has both components
func (key CacheEntryKey) Validate() error {
	if len(key.EntryID) == 0 {
		return commons.NewInvalidArgumentError("entry id is empty")
	}

	if len(key.ContentHash) == 0 {
		return commons.NewInvalidArgumentError("content hash is empty")
	}

	return nil
}

// MakeCacheFileName returns "<hex(entryId)>-<hex(contentHash)>.<ext>"
func MakeCacheFileName(kind ArtifactKind, key CacheEntryKey) (string, error) {
	if !kind.IsValid() {
		return "", commons.NewInvalidArgumentErrorf("unrecognized artifact kind %q", string(kind))
	}

	err := key.Validate()
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s.%s", key.String(), kind.Extension()), nil
}

// MakeCacheFileRelPath returns "<shard>/<filename>", shard is the first two chars of the filename
func MakeCacheFileRelPath(kind ArtifactKind, key CacheEntryKey) (string, error) {
	filename, err := MakeCacheFileName(kind, key)
	if err != nil {
		return "", err
	}

	return filepath.Join(filename[:ShardPrefixLength], filename), nil
}
