//go:build !linux && !darwin

package io

import "os"

// access time is not portable here; mod time is used instead
func statFile(path string) (*fileStat, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}

	return &fileStat{
		size:       info.Size(),
		regular:    info.Mode().IsRegular(),
		modTime:    info.ModTime(),
		accessTime: info.ModTime(),
	}, nil
}
