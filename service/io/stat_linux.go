//go:build linux

package io

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

func statFile(path string) (*fileStat, error) {
	var st unix.Stat_t
	err := unix.Lstat(path, &st)
	if err != nil {
		return nil, &os.PathError{Op: "lstat", Path: path, Err: err}
	}

	return &fileStat{
		size:       st.Size,
		regular:    st.Mode&unix.S_IFMT == unix.S_IFREG,
		modTime:    time.Unix(st.Mtim.Unix()),
		accessTime: time.Unix(st.Atim.Unix()),
	}, nil
}
