package ufs

import "github.com/changxiaoxie/ufs/errs"

// Mode is the access mode a file descriptor is opened with.
type Mode int

const (
	RDONLY Mode = iota
	WRONLY
	RDWR
)

func (m Mode) valid() bool {
	return m == RDONLY || m == WRONLY || m == RDWR
}

func (m Mode) readable() bool {
	return m == RDONLY || m == RDWR
}

func (m Mode) writable() bool {
	return m == WRONLY || m == RDWR
}

// descriptor is one slot of the in-memory open-file table.
type descriptor struct {
	open     bool
	mode     Mode
	inode    uint32
	position uint32
}

// openFileTable is the process-wide table of open descriptors, bounded to
// MaxFileDescriptors entries. It holds no persistent state: it is zeroed
// whenever a FileSystem is constructed, mirroring fs_init's bzero of
// fd_table.
type openFileTable struct {
	slots [MaxFileDescriptors]descriptor
}

// open claims the lowest-numbered free slot and returns its index.
func (t *openFileTable) open(inode uint32, mode Mode) (int, error) {
	for i := range t.slots {
		if !t.slots[i].open {
			t.slots[i] = descriptor{open: true, mode: mode, inode: inode, position: 0}
			return i, nil
		}
	}
	return 0, errs.ErrTooManyOpenFiles
}

// close frees a descriptor slot.
func (t *openFileTable) close(fd int) {
	t.slots[fd] = descriptor{}
}

// get validates and returns the descriptor at fd.
func (t *openFileTable) get(fd int) (*descriptor, error) {
	if fd < 0 || fd >= MaxFileDescriptors {
		return nil, errs.ErrBadDescriptor
	}
	if !t.slots[fd].open {
		return nil, errs.ErrBadDescriptor
	}
	return &t.slots[fd], nil
}
