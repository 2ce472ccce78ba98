// Package bounds enumerates the kernel call sites that copy data to or from
// user memory in a loop, so res can charge each loop iteration against a
// budget instead of looping unboundedly under memory pressure.
package bounds

// Bkey_t identifies one bounded call site.
type Bkey_t int

const (
	B_ASPACE_T_K2USER_INNER Bkey_t = iota
	B_ASPACE_T_USER2K_INNER
	B_FAT32_T_FILEREAD
	B_FAT32_T_FILEWRITE
	B_PIPE_T_READ
	B_PIPE_T_WRITE
	_bkey_max
)

// perop is the kernel-heap cost, in pages, charged for one iteration at
// each site. The values are conservative overestimates of one page-sized
// user-copy chunk's worth of kernel bookkeeping.
var perop = [_bkey_max]int{
	B_ASPACE_T_K2USER_INNER: 1,
	B_ASPACE_T_USER2K_INNER: 1,
	B_FAT32_T_FILEREAD:      1,
	B_FAT32_T_FILEWRITE:     1,
	B_PIPE_T_READ:           1,
	B_PIPE_T_WRITE:          1,
}

// Bounds returns the per-iteration cost for a call site.
func Bounds(k Bkey_t) int {
	return perop[k]
}
