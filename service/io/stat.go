package io

import "time"

// fileStat is a platform-independent view of lstat result
type fileStat struct {
	size       int64
	regular    bool
	modTime    time.Time
	accessTime time.Time
}
