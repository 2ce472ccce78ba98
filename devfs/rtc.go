package devfs

import (
	"time"

	"oops/defs"
	"oops/fdops"
	"oops/stat"
	"oops/util"
	"oops/vfs"
)

// Rtc_t is misc/rtc: reading it returns the current wall-clock time as an
// 8-byte little-endian Unix timestamp. rtc.rs's read() is a
// copy-and-pasted zero.rs body (its own comment flags it: "这里是zero的
// 实现记得更改", "this is zero's implementation, remember to change it") —
// a real-time clock that always reads zero has no use to a caller like
// meminfo/stats timestamps, so this port supplies the actual clock
// instead of repeating that bug. time.Now is the standard library's
// clock source; nothing in the retrieval pack wraps wall-clock time in a
// third-party library, so this is the one ambient concern this package
// carries on stdlib alone.
type Rtc_t struct{ baseDev }

func newRtc(fsid vfs.FsId) *Rtc_t {
	return &Rtc_t{baseDev{fsid: fsid, ino: devIno(defs.D_RTC), kind: defs.S_IFCHR}}
}

func (r *Rtc_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	var buf [8]byte
	util.Writen(buf[:], 8, 0, int(time.Now().Unix()))
	return dst.Uiowrite(buf[:util.Min(len(buf), dst.Remain())])
}

func (r *Rtc_t) Write(src fdops.Userio_i) (int, defs.Err_t) { return 0, -defs.EINVAL }

func (r *Rtc_t) Fstat(st *stat.Stat_t) defs.Err_t {
	st.Wmode(uint(defs.S_IFCHR | 0444))
	st.Wrdev(defs.Mkdev(defs.D_RTC, 0))
	st.Wnlink(1)
	return 0
}

func (r *Rtc_t) GetFile() (fdops.File_i, bool) { return r, true }
