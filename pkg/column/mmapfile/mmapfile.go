// Package mmapfile provides the mmap-backed file primitives shared by the
// index and value tables: open-or-create, grow, msync, and close.
//
// Both table kinds are fixed-header, append/slab files mapped MAP_SHARED
// for the lifetime of the handle; this package only handles the raw file
// and mapping, leaving header/record interpretation to the caller.
package mmapfile

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// File is an open, memory-mapped file.
type File struct {
	fd   int
	Data []byte
	path string
}

// OpenOrCreate opens path, creating it (and any missing parent directory
// is the caller's responsibility) with the given initial size when it does
// not already exist. The returned File owns fd and Data until Close.
func OpenOrCreate(path string, initialSize int64, perm os.FileMode) (*File, bool, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, uint32(perm))
	if err != nil {
		return nil, false, fmt.Errorf("mmapfile: open %s: %w", path, err)
	}

	var st unix.Stat_t

	err = unix.Fstat(fd, &st)
	if err != nil {
		_ = unix.Close(fd)

		return nil, false, fmt.Errorf("mmapfile: fstat %s: %w", path, err)
	}

	created := st.Size == 0

	size := st.Size
	if created {
		size = initialSize

		err = unix.Ftruncate(fd, size)
		if err != nil {
			_ = unix.Close(fd)

			return nil, false, fmt.Errorf("mmapfile: truncate %s: %w", path, err)
		}
	}

	data, err := mmap(fd, size)
	if err != nil {
		_ = unix.Close(fd)

		return nil, false, fmt.Errorf("mmapfile: mmap %s: %w", path, err)
	}

	return &File{fd: fd, Data: data, path: path}, created, nil
}

func mmap(fd int, size int64) ([]byte, error) {
	return unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

// Grow extends the file and remaps it to newSize. newSize must be larger
// than the current mapping; callers are responsible for recomputing any
// offsets cached before the call (the mapping address may change).
func (f *File) Grow(newSize int64) error {
	err := unix.Ftruncate(f.fd, newSize)
	if err != nil {
		return fmt.Errorf("mmapfile: grow truncate %s: %w", f.path, err)
	}

	err = unix.Munmap(f.Data)
	if err != nil {
		return fmt.Errorf("mmapfile: grow unmap %s: %w", f.path, err)
	}

	data, err := mmap(f.fd, newSize)
	if err != nil {
		return fmt.Errorf("mmapfile: grow remap %s: %w", f.path, err)
	}

	f.Data = data

	return nil
}

// Sync flushes [offset, offset+length) of the mapping to disk.
func (f *File) Sync(offset, length int) error {
	if length == 0 {
		return nil
	}

	err := unix.Msync(f.Data[offset:offset+length], unix.MS_SYNC)
	if err != nil {
		return fmt.Errorf("mmapfile: msync %s: %w", f.path, err)
	}

	return nil
}

// Close unmaps the file and closes its descriptor. Idempotent.
func (f *File) Close() error {
	if f.Data == nil {
		return nil
	}

	err := unix.Munmap(f.Data)

	f.Data = nil

	closeErr := unix.Close(f.fd)
	if err == nil {
		err = closeErr
	}

	f.fd = -1

	if err != nil {
		return fmt.Errorf("mmapfile: close %s: %w", f.path, err)
	}

	return nil
}

// Path returns the file path the mapping was opened from.
func (f *File) Path() string {
	return f.path
}
