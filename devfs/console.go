// Package devfs synthesizes the fixed device tree spec.md §4.5 describes:
// sda2, tty/pts, null, zero, misc/rtc, and shm (delegated back into the
// main mounted filesystem). Grounded on original_source's
// kernel/src/fs/devfs/{mod,null,zero,pts,sda2,misc/*}.rs, adapted from
// that package's per-device-file layout to this kernel's Dirnode_i/
// Fdops_i uniform interface.
package devfs

// Console_i abstracts the UART the real kernel drives through SBI calls
// (console putchar/getchar) — spec.md §1 scopes the actual SBI call
// shims out as an external collaborator, so tty/pts talk to this
// interface instead of hardware. Getchar blocks until a byte is
// available, mirroring pts.rs's getchar()+suspend_current() retry loop
// collapsed into one blocking call; Ready reports whether a byte can be
// read without blocking, for Poll.
type Console_i interface {
	Getchar() byte
	Putchar(b byte)
	Ready() bool
}

// MemConsole is an in-memory Console_i for tests and for running this
// kernel without a real UART: input is queued with Feed, output is
// captured in Written.
type MemConsole struct {
	in      chan byte
	Written []byte
}

// NewMemConsole returns a MemConsole with room for cap queued input bytes.
func NewMemConsole(cap int) *MemConsole {
	return &MemConsole{in: make(chan byte, cap)}
}

// Feed queues bytes as if typed at the console.
func (c *MemConsole) Feed(b ...byte) {
	for _, x := range b {
		c.in <- x
	}
}

func (c *MemConsole) Getchar() byte  { return <-c.in }
func (c *MemConsole) Putchar(b byte) { c.Written = append(c.Written, b) }
func (c *MemConsole) Ready() bool    { return len(c.in) > 0 }
