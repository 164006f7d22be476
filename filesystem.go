// Package ufs implements a small Unix-like block-based file system on top
// of a flat, fixed-size block device. This file is the top-level
// orchestration layer over the superblock manager, bitmap allocator, inode
// manager, directory engine, and file I/O engine.
package ufs

import (
	"github.com/changxiaoxie/ufs/block"
	"github.com/changxiaoxie/ufs/errs"
	multierror "github.com/hashicorp/go-multierror"
)

// FileStat is the information fs_stat reports about a directory entry.
type FileStat struct {
	InodeNo   uint32
	Type      InodeType
	Links     uint32
	Size      uint32
	NumBlocks uint16
}

// DirEntryInfo is one row of output from Ls: the pieces a shell front-end
// needs to render `name, type, inode, size`.
type DirEntryInfo struct {
	Name      string
	Type      InodeType
	InodeNo   uint32
	Size      uint32
	NumBlocks uint16
}

// FileSystem is the single owner of all mutable file system state: the
// backing device, the superblock, the bitmap/inode/directory/file
// subsystems, the open-file table, and the current working directory. The
// global state of a C implementation becomes fields here instead; nothing
// stops a caller from mounting more than one FileSystem over different
// devices in the same process.
type FileSystem struct {
	dev        block.Device
	sb         Superblock
	bitmap     *Bitmap
	inodes     *InodeManager
	dirs       *dirEngine
	files      *fileEngine
	descriptors openFileTable
	cwd        uint32
}

// Init mounts dev: if block 0 carries the expected magic number, its layout
// is accepted as-is and the working directory is reset to the root.
// Otherwise the device is formatted from scratch via Mkfs. The open-file
// table is always reset, matching fs_init's unconditional bzero of
// fd_table -- it never persists across a process lifetime.
func Init(dev block.Device) (*FileSystem, error) {
	sb, err := readSuperblock(dev)
	if err != nil {
		return nil, err
	}

	fs := &FileSystem{dev: dev}
	if sb.Magic == Magic {
		if err := fs.attach(sb); err != nil {
			return nil, err
		}
		fs.cwd = RootDirectory
		return fs, nil
	}

	if err := fs.Mkfs(dev.BlockCount()); err != nil {
		return nil, err
	}
	return fs, nil
}

// attach wires the subsystems to an already-formatted superblock.
func (fs *FileSystem) attach(sb Superblock) error {
	bitmap, err := newBitmap(fs.dev, sb.Layout)
	if err != nil {
		return err
	}
	fs.sb = sb
	fs.bitmap = bitmap
	fs.inodes = newInodeManager(fs.dev, sb.Layout, bitmap)
	fs.dirs = newDirEngine(fs.dev, bitmap, fs.inodes)
	fs.files = newFileEngine(fs.dev, bitmap)
	return nil
}

// Mkfs formats dev from scratch: every block is zeroed, a fresh superblock
// is computed and written, inode 0 is initialized as the root directory,
// and "." / ".." are added to it. If either directory insert fails, blocks
// 0 and 1 are re-zeroed so that a subsequent Init retries formatting
// instead of mounting a half-built root.
func (fs *FileSystem) Mkfs(fsSize uint32) error {
	layout, err := ComputeLayout(fsSize)
	if err != nil {
		return err
	}

	zero := make([]byte, block.Size)
	for i := uint32(0); i < fsSize; i++ {
		if err := fs.dev.WriteBlock(i, zero); err != nil {
			return err
		}
	}

	sb := Superblock{Magic: Magic, Layout: layout}
	if err := writeSuperblock(fs.dev, sb); err != nil {
		return err
	}

	if err := fs.attach(sb); err != nil {
		return err
	}
	fs.descriptors = openFileTable{}
	fs.cwd = RootDirectory

	root := Inode{}
	initInode(&root, TypeDirectory)
	if err := fs.inodes.Write(RootDirectory, root); err != nil {
		return err
	}

	wipeAndFail := func() error {
		var errAcc *multierror.Error
		if werr := fs.dev.WriteBlock(0, zero); werr != nil {
			errAcc = multierror.Append(errAcc, werr)
		}
		if werr := fs.dev.WriteBlock(1, zero); werr != nil {
			errAcc = multierror.Append(errAcc, werr)
		}
		cause := errs.ErrInvalidArgument.WithMessage("failed to initialize root directory")
		if errAcc != nil {
			return multierror.Append(errAcc, cause).ErrorOrNil()
		}
		return cause
	}

	root, err = fs.inodes.Read(RootDirectory)
	if err != nil {
		return err
	}
	if err := fs.dirs.add(RootDirectory, &root, ".", RootDirectory); err != nil {
		return wipeAndFail()
	}
	if err := fs.dirs.add(RootDirectory, &root, "..", RootDirectory); err != nil {
		return wipeAndFail()
	}
	return nil
}

// combineErr folds a cleanup failure into cause via multierror so that a
// rollback step which itself fails is never silently discarded.
func combineErr(cause, cleanup error) error {
	if cleanup == nil {
		return cause
	}
	var errAcc *multierror.Error
	errAcc = multierror.Append(errAcc, cause)
	errAcc = multierror.Append(errAcc, cleanup)
	return errAcc.ErrorOrNil()
}

func verifyName(name string) error {
	if name == "" {
		return errs.ErrInvalidArgument
	}
	if len(name) > MaxFileName {
		return errs.ErrNameTooLong
	}
	return nil
}

// Open implements fs_open. If name exists, it must not be opened in
// a writable mode if it is a directory. If it doesn't exist, RDONLY fails
// and any other mode creates a new, empty file.
func (fs *FileSystem) Open(name string, mode Mode) (int, error) {
	if err := verifyName(name); err != nil {
		return -1, err
	}
	if !mode.valid() {
		return -1, errs.ErrInvalidArgument
	}

	dir, err := fs.inodes.Read(fs.cwd)
	if err != nil {
		return -1, err
	}

	inodeNum, findErr := fs.dirs.find(dir, name)
	if findErr == nil {
		in, err := fs.inodes.Read(inodeNum)
		if err != nil {
			return -1, err
		}
		if in.Type == TypeDirectory && mode != RDONLY {
			return -1, errs.ErrIsADirectory
		}
		fd, err := fs.descriptors.open(inodeNum, mode)
		if err != nil {
			return -1, err
		}
		in.FDCount++
		if err := fs.inodes.Write(inodeNum, in); err != nil {
			return -1, err
		}
		return fd, nil
	}

	if mode == RDONLY {
		return -1, errs.ErrNotFound
	}

	newInode, err := fs.inodes.Alloc()
	if err != nil {
		return -1, err
	}
	in := Inode{}
	initInode(&in, TypeFile)

	fd, err := fs.descriptors.open(newInode, mode)
	if err != nil {
		return -1, combineErr(err, fs.inodes.Free(newInode))
	}
	in.FDCount++
	if err := fs.inodes.Write(newInode, in); err != nil {
		fs.descriptors.close(fd)
		return -1, combineErr(err, fs.inodes.Free(newInode))
	}

	if err := fs.dirs.add(fs.cwd, &dir, name, newInode); err != nil {
		fs.descriptors.close(fd)
		return -1, combineErr(err, fs.inodes.Free(newInode))
	}
	return fd, nil
}

// Close implements fs_close: it decrements the inode's descriptor count
// and, if that drops it to zero links and zero descriptors, reclaims the
// inode.
func (fs *FileSystem) Close(fd int) error {
	desc, err := fs.descriptors.get(fd)
	if err != nil {
		return err
	}

	in, err := fs.inodes.Read(desc.inode)
	if err != nil {
		return err
	}
	in.FDCount--
	if in.FDCount == 0 && in.Links == 0 {
		if err := fs.inodes.Free(desc.inode); err != nil {
			return err
		}
	} else if err := fs.inodes.Write(desc.inode, in); err != nil {
		return err
	}

	fs.descriptors.close(fd)
	return nil
}

// Read implements fs_read.
func (fs *FileSystem) Read(fd int, buf []byte) (int, error) {
	desc, err := fs.descriptors.get(fd)
	if err != nil {
		return -1, err
	}
	if !desc.mode.readable() {
		return -1, errs.ErrWriteOnly
	}
	if buf == nil {
		return -1, errs.ErrInvalidArgument
	}

	in, err := fs.inodes.Read(desc.inode)
	if err != nil {
		return -1, err
	}

	n, err := fs.files.read(desc.position, in, buf)
	if err != nil {
		return -1, err
	}
	desc.position += uint32(n)
	return n, nil
}

// Write implements fs_write.
func (fs *FileSystem) Write(fd int, buf []byte) (int, error) {
	desc, err := fs.descriptors.get(fd)
	if err != nil {
		return -1, err
	}
	if !desc.mode.writable() {
		return -1, errs.ErrReadOnly
	}
	if buf == nil {
		return -1, errs.ErrInvalidArgument
	}

	in, err := fs.inodes.Read(desc.inode)
	if err != nil {
		return -1, err
	}

	n, err := fs.files.write(desc.position, &in, buf)
	if err != nil {
		return -1, err
	}

	desc.position += uint32(n)
	if err := fs.inodes.Write(desc.inode, in); err != nil {
		return -1, err
	}
	return n, nil
}

// Lseek implements fs_lseek: it sets the descriptor's position
// unconditionally. Seeking past the end of the file is legal; it only
// materializes data on a subsequent write.
func (fs *FileSystem) Lseek(fd int, offset int64) (int64, error) {
	desc, err := fs.descriptors.get(fd)
	if err != nil {
		return -1, err
	}
	if offset < 0 {
		return -1, errs.ErrInvalidArgument
	}
	desc.position = uint32(offset)
	return offset, nil
}

// Mkdir implements fs_mkdir, rolling back every partial allocation on
// failure: a directory whose "." insert fails releases the inode and the
// entry it added to the parent; one whose ".." insert fails additionally
// undoes the "." insert.
func (fs *FileSystem) Mkdir(name string) error {
	if err := verifyName(name); err != nil {
		return err
	}

	dir, err := fs.inodes.Read(fs.cwd)
	if err != nil {
		return err
	}
	if _, err := fs.dirs.find(dir, name); err == nil {
		return errs.ErrExists
	}

	newInode, err := fs.inodes.Alloc()
	if err != nil {
		return err
	}
	child := Inode{}
	initInode(&child, TypeDirectory)
	if err := fs.inodes.Write(newInode, child); err != nil {
		return err
	}

	rollback := func(cause error) error {
		return combineErr(cause, fs.inodes.Free(newInode))
	}

	if err := fs.dirs.add(fs.cwd, &dir, name, newInode); err != nil {
		return rollback(err)
	}

	child, err = fs.inodes.Read(newInode)
	if err != nil {
		return rollback(err)
	}
	if err := fs.dirs.add(newInode, &child, ".", newInode); err != nil {
		return rollback(combineErr(err, fs.dirs.remove(fs.cwd, &dir, name)))
	}
	if err := fs.dirs.add(newInode, &child, "..", fs.cwd); err != nil {
		return rollback(combineErr(err, fs.dirs.remove(fs.cwd, &dir, name)))
	}
	return nil
}

// Rmdir implements fs_rmdir. "." and ".." can never be removed, and a
// directory must contain nothing but those two entries to be removable.
func (fs *FileSystem) Rmdir(name string) error {
	if name == "." || name == ".." {
		return errs.ErrNotPermitted
	}
	if err := verifyName(name); err != nil {
		return err
	}

	dir, err := fs.inodes.Read(fs.cwd)
	if err != nil {
		return err
	}
	inodeNum, err := fs.dirs.find(dir, name)
	if err != nil {
		return err
	}

	target, err := fs.inodes.Read(inodeNum)
	if err != nil {
		return err
	}
	if target.Type != TypeDirectory {
		return errs.ErrNotADirectory
	}
	if target.Size != 2*DirEntrySize {
		return errs.ErrDirectoryNotEmpty
	}

	if err := fs.dirs.remove(fs.cwd, &dir, name); err != nil {
		return err
	}

	target.Links--
	if target.Links == 0 {
		return fs.inodes.Free(inodeNum)
	}
	return fs.inodes.Write(inodeNum, target)
}

// Cd implements fs_cd.
func (fs *FileSystem) Cd(name string) error {
	if err := verifyName(name); err != nil {
		return err
	}
	dir, err := fs.inodes.Read(fs.cwd)
	if err != nil {
		return err
	}
	inodeNum, err := fs.dirs.find(dir, name)
	if err != nil {
		return err
	}
	target, err := fs.inodes.Read(inodeNum)
	if err != nil {
		return err
	}
	if target.Type != TypeDirectory {
		return errs.ErrNotADirectory
	}
	fs.cwd = inodeNum
	return nil
}

// Link implements fs_link: old must exist and not be a directory, new must
// not already exist.
func (fs *FileSystem) Link(oldName, newName string) error {
	if err := verifyName(oldName); err != nil {
		return err
	}
	if err := verifyName(newName); err != nil {
		return err
	}

	dir, err := fs.inodes.Read(fs.cwd)
	if err != nil {
		return err
	}
	if _, err := fs.dirs.find(dir, newName); err == nil {
		return errs.ErrExists
	}

	inodeNum, err := fs.dirs.find(dir, oldName)
	if err != nil {
		return err
	}
	in, err := fs.inodes.Read(inodeNum)
	if err != nil {
		return err
	}
	if in.Type == TypeDirectory {
		return errs.ErrIsADirectory
	}

	if err := fs.dirs.add(fs.cwd, &dir, newName, inodeNum); err != nil {
		return err
	}

	in.Links++
	return fs.inodes.Write(inodeNum, in)
}

// Unlink implements fs_unlink: target must exist and not be a directory.
func (fs *FileSystem) Unlink(name string) error {
	if err := verifyName(name); err != nil {
		return err
	}

	dir, err := fs.inodes.Read(fs.cwd)
	if err != nil {
		return err
	}
	inodeNum, err := fs.dirs.find(dir, name)
	if err != nil {
		return err
	}
	in, err := fs.inodes.Read(inodeNum)
	if err != nil {
		return err
	}
	if in.Type == TypeDirectory {
		return errs.ErrIsADirectory
	}

	in.Links--
	if in.Links == 0 && in.FDCount == 0 {
		if err := fs.inodes.Free(inodeNum); err != nil {
			return err
		}
	} else if err := fs.inodes.Write(inodeNum, in); err != nil {
		return err
	}

	return fs.dirs.remove(fs.cwd, &dir, name)
}

// Stat implements fs_stat.
func (fs *FileSystem) Stat(name string) (FileStat, error) {
	if name == "" {
		return FileStat{}, errs.ErrInvalidArgument
	}

	dir, err := fs.inodes.Read(fs.cwd)
	if err != nil {
		return FileStat{}, err
	}
	inodeNum, err := fs.dirs.find(dir, name)
	if err != nil {
		return FileStat{}, err
	}
	in, err := fs.inodes.Read(inodeNum)
	if err != nil {
		return FileStat{}, err
	}

	return FileStat{
		InodeNo:   inodeNum,
		Type:      in.Type,
		Links:     in.Links,
		Size:      in.Size,
		NumBlocks: in.InUseBlocks,
	}, nil
}

// Ls implements fs_ls, returning every entry of the working directory
// (including "." and "..") for a caller to render.
func (fs *FileSystem) Ls() ([]DirEntryInfo, error) {
	dir, err := fs.inodes.Read(fs.cwd)
	if err != nil {
		return nil, err
	}

	lastCount := lastBlockEntryCount(dir.Size)
	var out []DirEntryInfo

	for bi := uint16(0); bi < dir.InUseBlocks; bi++ {
		buf, err := readBlock(fs.dev, dir.Direct[bi])
		if err != nil {
			return nil, err
		}

		max := uint32(EntriesPerBlock)
		if bi == dir.InUseBlocks-1 {
			max = lastCount
		}
		for i := uint32(0); i < max; i++ {
			ent := decodeDirent(buf[i*DirEntrySize:])
			entryInode, err := fs.inodes.Read(uint32(ent.Inode))
			if err != nil {
				return nil, err
			}
			out = append(out, DirEntryInfo{
				Name:      ent.Name,
				Type:      entryInode.Type,
				InodeNo:   uint32(ent.Inode),
				Size:      entryInode.Size,
				NumBlocks: entryInode.InUseBlocks,
			})
		}
	}
	return out, nil
}
