package utils

import (
	"encoding/hex"
	"math"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/xerrors"
)

func ParseTime(t string) (time.Time, error) {
	return time.Parse(time.RFC3339, t)
}

func MakeTimeToString(t time.Time) string {
	return t.Format(time.RFC3339)
}

// MakeHexString returns lower-case hex encoding of the given bytes
func MakeHexString(b []byte) string {
	return hex.EncodeToString(b)
}

// ParseHexString decodes a hex string
func ParseHexString(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

// MakeSizeString returns human readable size string, e.g., "20 GB"
func MakeSizeString(size int64) string {
	if size < 0 {
		return "-" + humanize.Bytes(uint64(-size))
	}
	return humanize.Bytes(uint64(size))
}

// ParseSizeString parses human readable size string, e.g., "20GB", "512MiB"
func ParseSizeString(s string) (int64, error) {
	size, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}

	if size > math.MaxInt64 {
		return 0, xerrors.Errorf("size %q is too large", s)
	}
	return int64(size), nil
}

// MakeCountString returns comma separated count string, e.g., "1,234,567"
func MakeCountString(count int64) string {
	return humanize.Comma(count)
}
