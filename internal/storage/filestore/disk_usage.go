package filestore

import (
	"fmt"
	"syscall"
)

// DiskUsage возвращает ёмкость и свободное место файловой системы, на которой лежит path.
func DiskUsage(path string) (total, available int64, err error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, 0, fmt.Errorf("ошибка statfs %s: %w", path, err)
	}
	return int64(stat.Blocks) * int64(stat.Bsize), int64(stat.Bavail) * int64(stat.Bsize), nil
}
