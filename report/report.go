// Package report renders file system usage statistics and debug snapshots.
package report

import (
	"fmt"
	"io"

	"github.com/davecgh/go-spew/spew"
	"github.com/gocarina/gocsv"

	"github.com/changxiaoxie/ufs"
)

// EntryRow is one line of a directory listing report, written out with
// gocsv's struct-tag-driven marshaling.
type EntryRow struct {
	Name      string `csv:"name"`
	InodeNo   uint32 `csv:"inode"`
	Type      string `csv:"type"`
	SizeBytes uint32 `csv:"size_bytes"`
	Blocks    uint16 `csv:"blocks"`
}

func typeName(t ufs.InodeType) string {
	switch t {
	case ufs.TypeDirectory:
		return "dir"
	case ufs.TypeFile:
		return "file"
	default:
		return "free"
	}
}

// WriteUsageCSV lists the working directory of fs and marshals it to w as
// CSV, one row per entry.
func WriteUsageCSV(fs *ufs.FileSystem, w io.Writer) error {
	entries, err := fs.Ls()
	if err != nil {
		return err
	}

	rows := make([]EntryRow, len(entries))
	for i, e := range entries {
		rows[i] = EntryRow{
			Name:      e.Name,
			InodeNo:   e.InodeNo,
			Type:      typeName(e.Type),
			SizeBytes: e.Size,
			Blocks:    e.NumBlocks,
		}
	}
	return gocsv.Marshal(rows, w)
}

// DumpStat renders a FileStat as a multi-line debug snapshot, printed by the
// shell's `stat` command to show every field at once.
func DumpStat(name string, st ufs.FileStat) string {
	return fmt.Sprintf("%s:\n%s", name, spew.Sdump(st))
}
