package procfs

import (
	"fmt"

	"oops/mem"
	"oops/vfs"
)

// newMeminfo backs the "meminfo" entry. original_source's meminfo.rs
// read() is `Ok(Vec::new())` — an unfilled stub with no content — so
// there's no line format to port; this renders mem.FrameAllocator's own
// Avail()/Capacity() (already doc-commented as feeding exactly this file)
// in the same "Key:  NNNN kB" shape real Linux /proc/meminfo uses, since
// this kernel follows real Linux ABI conventions elsewhere it has a free
// choice (errno values, struct stat layout, ioctl(TIOCGWINSZ)).
func newMeminfo(fsid vfs.FsId, frames *mem.FrameAllocator) *contentFile {
	return newContentFile(fsid, procIno(2), func() []byte {
		total := frames.Capacity() * mem.PGSIZE / 1024
		free := frames.Avail() * mem.PGSIZE / 1024
		return []byte(fmt.Sprintf(
			"MemTotal:       %8d kB\nMemFree:        %8d kB\nMemAvailable:   %8d kB\n",
			total, free, free))
	})
}
