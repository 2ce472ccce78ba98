package fat32

import (
	"sync"

	"golang.org/x/text/encoding/unicode"

	"oops/defs"
	"oops/util"
)

// utf16LE transcodes VFAT long names, which the on-disk format always
// stores as UTF-16LE code units regardless of the filesystem's own
// encoding.
var utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// On-disk short (8.3) directory entry field offsets within a 32-byte
// slot, grounded on original_source's DiskDirEntry.
const (
	sOffName    = 0
	sOffExt     = 8
	sOffAttr    = 11
	sOffCluHi   = 20
	sOffCluLo   = 26
	sOffSize    = 28
	attrDir     = 0x10
	attrLFN     = 0x0F
	entryFree   = 0x00
	entryDelete = 0xE5
)

// Long (VFAT) entry field offsets, grounded on DiskLongDirEntry: 5 UTF-16
// units at name1 (offset 1), 6 at name2 (offset 14), 2 at name3
// (offset 28), 13 units (26 bytes) total per entry.
const (
	lOffSeq      = 0
	lOffName1    = 1 // 10 bytes, 5 units
	lOffAttr     = 11
	lOffName2    = 14 // 12 bytes, 6 units
	lOffName3    = 28 // 4 bytes, 2 units
	lEndBit      = 0x40
	unitsPerLong = 13
)

func isLFN(entry []byte) bool       { return entry[sOffAttr]&0x0F == attrLFN }
func isDeleted(entry []byte) bool   { return !isLFN(entry) && entry[0] == entryDelete }
func isEmptySlot(entry []byte) bool { return !isLFN(entry) && entry[0] == entryFree }

func shortGetCluster(entry []byte) uint32 {
	hi := uint32(util.Readn(entry, 2, sOffCluHi))
	lo := uint32(util.Readn(entry, 2, sOffCluLo))
	return hi<<16 | lo
}

func shortSetCluster(entry []byte, cluster uint32) {
	util.Writen(entry, 2, sOffCluHi, int(cluster>>16))
	util.Writen(entry, 2, sOffCluLo, int(cluster&0xFFFF))
}

// shortGetName reconstructs "BASE.EXT" (trimmed, lowercased the way this
// filesystem never bothers to — names round-trip exactly as stored, the
// same ASCII-only simplification split_shortname makes on write).
func shortGetName(entry []byte) string {
	base := trimSpace(entry[sOffName : sOffName+8])
	ext := trimSpace(entry[sOffExt : sOffExt+3])
	if len(ext) == 0 {
		return base
	}
	return base + "." + ext
}

func trimSpace(b []byte) string {
	end := len(b)
	for end > 0 && b[end-1] == ' ' {
		end--
	}
	return string(b[:end])
}

// splitShortname mirrors original_source's split_shortname: only names
// that already fit the base[.ext] shape (base<=8 without a dot, or
// idx<=8/ext<=3 with one) get a short entry; everything else needs a
// long-name group.
func splitShortname(name string) (base, ext string, ok bool) {
	if name == "." || name == ".." {
		return padTo(name, 8), padTo("", 3), true
	}
	idx := -1
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			idx = i
		}
	}
	if idx >= 0 {
		extLen := len(name) - idx - 1
		if idx > 8 || extLen > 3 {
			return "", "", false
		}
		return padTo(name[:idx], 8), padTo(name[idx+1:], 3), true
	}
	if len(name) > 8 {
		return "", "", false
	}
	return padTo(name, 8), padTo("", 3), true
}

func padTo(s string, n int) string {
	for len(s) < n {
		s += " "
	}
	return s
}

// encodeUTF16LE transcodes name to the UTF-16LE code units VFAT long
// entries store on disk. Falls back to a byte-for-byte widening (valid
// for the ASCII names original_source only ever produced) if the name
// isn't valid UTF-8.
func encodeUTF16LE(name string) []byte {
	units, err := utf16LE.NewEncoder().Bytes([]byte(name))
	if err != nil {
		out := make([]byte, 0, len(name)*2)
		for i := 0; i < len(name); i++ {
			out = append(out, name[i], 0)
		}
		return out
	}
	return units
}

// splitLongname lays name's UTF-16LE code units into 13-unit (26-byte)
// chunks, terminating with a 0x0000 unit and padding any remainder with
// 0xFFFF, per original_source's split_longname/create_raw_dentry.
func splitLongname(name string) [][26]byte {
	units := encodeUTF16LE(name)
	nUnits := len(units) / 2
	nchunks := (nUnits + unitsPerLong) / unitsPerLong
	chunks := make([][26]byte, nchunks)
	total := nchunks * unitsPerLong
	for k := 0; k < total; k++ {
		ci, pi := k/unitsPerLong, k%unitsPerLong
		var lo, hi byte
		switch {
		case k < nUnits:
			lo, hi = units[2*k], units[2*k+1]
		case k == nUnits:
			lo, hi = 0, 0
		default:
			lo, hi = 0xFF, 0xFF
		}
		chunks[ci][2*pi] = lo
		chunks[ci][2*pi+1] = hi
	}
	return chunks
}

// collectLongnameUnits gathers the raw UTF-16LE bytes out of a chunk
// set: units of 0xFFFF are padding, a unit of 0x0000 terminates early
// (both observed this way by original_source's get_dentry_by_offset).
func collectLongnameUnits(chunks [][26]byte) []byte {
	var raw []byte
	for _, c := range chunks {
		for j := 0; j < unitsPerLong; j++ {
			lo, hi := c[2*j], c[2*j+1]
			unit := uint16(hi)<<8 | uint16(lo)
			if unit == 0 {
				return raw
			}
			if unit == 0xFFFF {
				continue
			}
			raw = append(raw, lo, hi)
		}
	}
	return raw
}

// joinLongname reverses splitLongname, decoding the gathered UTF-16LE
// bytes back to a Go string.
func joinLongname(chunks [][26]byte) string {
	raw := collectLongnameUnits(chunks)
	out, err := utf16LE.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(out)
}

// buildEntries renders name (plus its starting cluster and attribute
// byte) into the 32-byte disk slots write-order expects: long entries in
// reverse-chunk order (last chunk first, end-bit set) followed by the
// short entry, grounded on create_raw_dentry.
func buildEntries(name string, cluster uint32, attr uint8) [][32]byte {
	var out [][32]byte
	if base, ext, ok := splitShortname(name); ok {
		var e [32]byte
		copy(e[sOffName:sOffName+8], base)
		copy(e[sOffExt:sOffExt+3], ext)
		e[sOffAttr] = attr
		shortSetCluster(e[:], cluster)
		out = append(out, e)
		return out
	}

	chunks := splitLongname(name)
	for i := len(chunks) - 1; i >= 0; i-- {
		var e [32]byte
		seq := uint8(i + 1)
		if i == len(chunks)-1 {
			seq |= lEndBit
		}
		e[lOffSeq] = seq
		copy(e[lOffName1:lOffName1+10], chunks[i][0:10])
		e[lOffAttr] = attrLFN
		copy(e[lOffName2:lOffName2+12], chunks[i][10:22])
		copy(e[lOffName3:lOffName3+4], chunks[i][22:26])
		out = append(out, e)
	}

	var short [32]byte
	alias := shortAlias(name, len(out)+1)
	base, ext, _ := splitShortname(alias)
	copy(short[sOffName:sOffName+8], base)
	copy(short[sOffExt:sOffExt+3], ext)
	short[sOffAttr] = attr
	shortSetCluster(short[:], cluster)
	out = append(out, short)
	return out
}

// shortAlias derives an 8.3-legal stand-in name for an entry that needed
// a VFAT long-name group, the "~1" numeric-tail convention real FAT32
// drivers use, keyed off a counter the caller already has at hand
// (original_source leaves this unimplemented; this filesystem only needs
// the alias to be syntactically valid, not collision-free across a
// directory, since every lookup here goes through the long name).
func shortAlias(name string, n int) string {
	base := ""
	ext := ""
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '.' {
			ext = name[i+1:]
			break
		}
		if len(base) < 6 {
			if c >= 'a' && c <= 'z' {
				c -= 'a' - 'A'
			}
			base += string(c)
		}
	}
	if len(base) == 0 {
		base = "FILE"
	}
	if len(ext) > 3 {
		ext = ext[:3]
	}
	tail := "~1"
	if n > 1 && n < 10 {
		tail = "~" + string(rune('0'+n))
	}
	short := base + tail
	if len(short) > 8 {
		short = short[:8]
	}
	if ext != "" {
		short += "." + ext
	}
	return short
}

// dirEntry is one parsed (name, metadata) result from scanning a
// directory's byte stream, grounded on get_dentry_by_offset.
type dirEntry struct {
	name         string
	attr         uint8
	startCluster uint32
	size         uint32
	groupOff     int // offset of the first entry in the group (long or short)
	shortOff     int // offset of the short entry itself
	longCount    int
	nextOff      int
}

// Dirent_t is the cached, shared identity of one file or directory:
// everything OpenAt/Mknod/Delete need to find and mutate its on-disk
// entry, plus the lazily-extended cluster-chain cache spec.md §4.5
// describes ("byte-offset→(sector, offset-in-sector) translation via
// cached cluster chain; misses walk the FAT and extend the cache").
// Multiple FileHandle_t opens of the same file share one Dirent_t;
// Dirent_t.refs governs when a deleted file's chain is actually freed.
type Dirent_t struct {
	fs *FileSystem_t

	mu           sync.Mutex
	name         string
	attr         uint8
	startCluster uint32
	size         uint32

	// location of this entry's own on-disk short entry, so Delete,
	// rename, and size updates can find it again.
	parentCluster uint32
	groupOff      int
	shortOff      int

	deleted bool
	refs    int

	clusterChain []uint32
}

func (fs *FileSystem_t) newDirent(name string, cluster uint32, attr uint8, size uint32) *Dirent_t {
	return &Dirent_t{
		fs:           fs,
		name:         name,
		attr:         attr,
		startCluster: cluster,
		size:         size,
		clusterChain: []uint32{cluster},
	}
}

func kindFromAttr(attr uint8) uint {
	if attr&attrDir != 0 {
		return defs.S_IFDIR
	}
	return defs.S_IFREG
}

// lookupDirent returns the cached Dirent_t for startCluster, bumping its
// refcount, or constructs and caches one from a freshly scanned entry.
func (fs *FileSystem_t) lookupDirent(e dirEntry, parentCluster uint32) *Dirent_t {
	fs.direntMu.Lock()
	defer fs.direntMu.Unlock()
	if r, ok := fs.dirents[e.startCluster]; ok {
		r.refs++
		return r.d
	}
	d := &Dirent_t{
		fs:            fs,
		name:          e.name,
		attr:          e.attr,
		startCluster:  e.startCluster,
		size:          e.size,
		parentCluster: parentCluster,
		groupOff:      e.groupOff,
		shortOff:      e.shortOff,
		clusterChain:  []uint32{e.startCluster},
	}
	fs.dirents[e.startCluster] = &direntRef{d: d, refs: 1}
	return d
}

func (fs *FileSystem_t) releaseDirent(d *Dirent_t) {
	fs.direntMu.Lock()
	r, ok := fs.dirents[d.startCluster]
	if !ok {
		fs.direntMu.Unlock()
		return
	}
	r.refs--
	if r.refs > 0 {
		fs.direntMu.Unlock()
		return
	}
	delete(fs.dirents, d.startCluster)
	fs.direntMu.Unlock()

	d.mu.Lock()
	deleted := d.deleted
	start := d.startCluster
	d.mu.Unlock()
	if deleted {
		fs.freeChain(start)
	}
}

// bytesPerCluster returns this volume's cluster size in bytes.
func (fs *FileSystem_t) bytesPerCluster() int {
	return fs.sectorsPerCluster * bytesPerBlock
}

// clusterAt returns d's num'th cluster (0-indexed), extending the cached
// chain via the FAT as needed, grounded on Dirent::get_cluster.
func (d *Dirent_t) clusterAt(num int) (uint32, defs.Err_t) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.clusterChain) <= num {
		next, err := d.fs.nextCluster(d.clusterChain[len(d.clusterChain)-1])
		if err != 0 {
			return 0, err
		}
		d.clusterChain = append(d.clusterChain, next)
	}
	return d.clusterChain[num], 0
}

// growChain extends d's chain by one freshly allocated cluster.
func (d *Dirent_t) growChain() (uint32, defs.Err_t) {
	d.mu.Lock()
	last := d.clusterChain[len(d.clusterChain)-1]
	d.mu.Unlock()

	c, err := d.fs.extendChain(last)
	if err != 0 {
		return 0, err
	}
	d.mu.Lock()
	d.clusterChain = append(d.clusterChain, c)
	d.mu.Unlock()
	return c, 0
}

// posOfOffset translates a byte offset within d's data into a
// (block, offset-in-block) pair, growing the cluster chain if needed.
func (d *Dirent_t) posOfOffset(off int, grow bool) (int, int, defs.Err_t) {
	bpc := d.fs.bytesPerCluster()
	num := off / bpc
	for {
		cluster, err := d.clusterAt(num)
		if err == 0 {
			blk := d.fs.clusterStartBlock(cluster) + (off%bpc)/bytesPerBlock
			return blk, off % bytesPerBlock, 0
		}
		if err != -defs.ENOSPC || !grow {
			return 0, 0, err
		}
		if _, gerr := d.growChain(); gerr != 0 {
			return 0, 0, gerr
		}
	}
}

// readAt copies len(buf) bytes starting at off, bounded by d's size,
// grounded on Dirent::read_at's block-at-a-time loop.
func (d *Dirent_t) readAt(off int, buf []byte) (int, defs.Err_t) {
	d.mu.Lock()
	size := int(d.size)
	d.mu.Unlock()
	if off >= size {
		return 0, 0
	}
	end := off + len(buf)
	if end > size {
		end = size
	}
	start, n := off, 0
	for start < end {
		blk, boff, err := d.posOfOffset(start, false)
		if err != 0 {
			return n, err
		}
		chunk := bytesPerBlock - boff
		if want := end - start; chunk > want {
			chunk = want
		}
		b, err := d.fs.cache.Get(d.fs.dev, blk)
		if err != 0 {
			return n, err
		}
		b.Lock()
		copy(buf[n:n+chunk], b.Data[boff:boff+chunk])
		b.Unlock()
		d.fs.cache.Put(b)
		start += chunk
		n += chunk
	}
	return n, 0
}

// writeAt writes buf at off, growing d's logical size (and, via
// posOfOffset, its cluster chain) as needed.
func (d *Dirent_t) writeAt(off int, buf []byte) (int, defs.Err_t) {
	if err := d.growSizeTo(off + len(buf)); err != 0 {
		return 0, err
	}
	start, n := off, 0
	end := off + len(buf)
	for start < end {
		blk, boff, err := d.posOfOffset(start, true)
		if err != 0 {
			return n, err
		}
		chunk := bytesPerBlock - boff
		if want := end - start; chunk > want {
			chunk = want
		}
		b, err := d.fs.cache.Get(d.fs.dev, blk)
		if err != 0 {
			return n, err
		}
		b.Lock()
		copy(b.Data[boff:boff+chunk], buf[n:n+chunk])
		b.Unlock()
		b.MarkDirty()
		d.fs.cache.Put(b)
		start += chunk
		n += chunk
	}
	return n, 0
}

// growSizeTo raises d's logical size to at least want, persisting the
// new size into its own on-disk short entry (Dirent::set_size runs for
// both files and directories in this driver, a deliberate simplification
// over real FAT32 where only files carry a meaningful size field — this
// image is never read by anything but this driver).
func (d *Dirent_t) growSizeTo(want int) defs.Err_t {
	d.mu.Lock()
	if int(d.size) >= want {
		d.mu.Unlock()
		return 0
	}
	d.mu.Unlock()
	return d.setSizeOnDisk(want)
}

// setSizeOnDisk sets d's logical size to exactly want, in both directions,
// always repersisting the on-disk short entry's size field. growSizeTo
// only ever raises size (the common write-extends-file path); Truncate's
// shrink path needs the same persistence without the "already big enough"
// short-circuit, hence this separate entry point.
func (d *Dirent_t) setSizeOnDisk(want int) defs.Err_t {
	d.mu.Lock()
	d.size = uint32(want)
	parentCluster, shortOff := d.parentCluster, d.shortOff
	isRoot := parentCluster == 0 && shortOff == 0 && d.startCluster == rootDirCluster
	d.mu.Unlock()
	if isRoot {
		return 0 // the root directory has no parent entry to persist into
	}
	return d.fs.writeShortField(parentCluster, shortOff, sOffSize, int(want))
}

// writeShortField patches a single field of an already-written short
// entry living in directory dirCluster at byte offset shortOff, used by
// setSizeOnDisk (which growSizeTo and Truncate go through).
func (fs *FileSystem_t) writeShortField(dirCluster uint32, shortOff, fieldOff, val int) defs.Err_t {
	blk, boff, err := fs.posInCluster(dirCluster, shortOff)
	if err != 0 {
		return err
	}
	b, err := fs.cache.Get(fs.dev, blk)
	if err != 0 {
		return err
	}
	b.Lock()
	sz := 4
	if fieldOff == sOffAttr || fieldOff == 0 {
		sz = 1
	}
	util.Writen(b.Data[:], sz, boff+fieldOff, val)
	b.Unlock()
	b.MarkDirty()
	fs.cache.Put(b)
	return 0
}

// posInCluster translates a byte offset relative to a directory whose
// first cluster is dirCluster into a (block, offset) pair, walking the
// chain from scratch — used for the rare single-field patch where no
// Dirent_t cluster cache is at hand.
func (fs *FileSystem_t) posInCluster(startCluster uint32, off int) (int, int, defs.Err_t) {
	bpc := fs.bytesPerCluster()
	cluster := startCluster
	for off >= bpc {
		next, err := fs.nextCluster(cluster)
		if err != 0 {
			return 0, 0, err
		}
		cluster = next
		off -= bpc
	}
	blk := fs.clusterStartBlock(cluster) + off/bytesPerBlock
	return blk, off % bytesPerBlock, 0
}

// rawReadAt reads len(buf) bytes starting at off by walking the cluster
// chain directly, without bounding by d's logical size. Directory
// scanning needs this: a directory's true extent is discovered by
// walking until an empty/end marker (isEmptySlot), not by trusting a
// persisted size — the root directory in particular has no parent entry
// to persist one into, so scanAt can't rely on d.size the way readAt's
// file-read path does.
func (d *Dirent_t) rawReadAt(off int, buf []byte) (int, defs.Err_t) {
	start, n := off, 0
	end := off + len(buf)
	for start < end {
		blk, boff, err := d.posOfOffset(start, false)
		if err != 0 {
			return n, err
		}
		chunk := bytesPerBlock - boff
		if want := end - start; chunk > want {
			chunk = want
		}
		b, err := d.fs.cache.Get(d.fs.dev, blk)
		if err != 0 {
			return n, err
		}
		b.Lock()
		copy(buf[n:n+chunk], b.Data[boff:boff+chunk])
		b.Unlock()
		d.fs.cache.Put(b)
		start += chunk
		n += chunk
	}
	return n, 0
}

// scanAt reads the dirent group starting at abs offset off within dir's
// data, grounded on get_raw_dentry + get_dentry_by_offset fused
// together. Returns -defs.ENOENT at the end-of-directory marker.
func (dir *Dirent_t) scanAt(off int) (dirEntry, defs.Err_t) {
	groupOff := off
	var longChunks [][26]byte
	for {
		var raw [32]byte
		n, err := dir.rawReadAt(off, raw[:])
		if err == -defs.ENOSPC {
			return dirEntry{}, -defs.ENOENT
		}
		if err != 0 {
			return dirEntry{}, err
		}
		if n < 32 || isEmptySlot(raw[:]) {
			return dirEntry{}, -defs.ENOENT
		}
		if isDeleted(raw[:]) {
			longChunks = nil
			groupOff = off + 32
			off += 32
			continue
		}
		if isLFN(raw[:]) {
			var chunk [26]byte
			copy(chunk[0:10], raw[lOffName1:lOffName1+10])
			copy(chunk[10:22], raw[lOffName2:lOffName2+12])
			copy(chunk[22:26], raw[lOffName3:lOffName3+4])
			longChunks = append(longChunks, chunk)
			off += 32
			continue
		}

		// short entry: terminates the group.
		e := dirEntry{
			attr:         raw[sOffAttr],
			startCluster: shortGetCluster(raw[:]),
			size:         uint32(util.Readn(raw[:], 4, sOffSize)),
			groupOff:     groupOff,
			shortOff:     off,
			longCount:    len(longChunks),
			nextOff:      off + 32,
		}
		if len(longChunks) == 0 {
			e.name = shortGetName(raw[:])
		} else {
			// chunks were appended in disk order (last name chunk
			// first, end-bit set); joinLongname wants first-chunk-first.
			rev := make([][26]byte, len(longChunks))
			for i, c := range longChunks {
				rev[len(longChunks)-1-i] = c
			}
			e.name = joinLongname(rev)
		}
		return e, 0
	}
}

// recomputeSize walks a directory's entries to find its true content
// extent (the offset of its terminating empty slot) and sets its
// in-memory size to match. Used once, at Mount, for the root directory —
// every other directory's size is persisted into its own on-disk short
// entry and restored by lookupDirent, but root has no parent entry to
// persist into, so a remount has nothing to read it back from.
func (dir *Dirent_t) recomputeSize() defs.Err_t {
	off := 0
	for {
		e, err := dir.scanAt(off)
		if err == -defs.ENOENT {
			break
		}
		if err != 0 {
			return err
		}
		off = e.nextOff
	}
	dir.mu.Lock()
	dir.size = uint32(off)
	dir.mu.Unlock()
	return 0
}

// findByName scans dir's entries for name, returning its parsed dirEntry
// or -defs.ENOENT.
func (dir *Dirent_t) findByName(name string) (dirEntry, defs.Err_t) {
	off := 0
	for {
		e, err := dir.scanAt(off)
		if err != 0 {
			return dirEntry{}, err
		}
		if e.name == name {
			return e, 0
		}
		off = e.nextOff
	}
}

// listFrom renders up to a caller-bounded number of entries starting
// logically at the idx'th scanned child (no "." or ".." entries are
// produced; 0 is the first real child), for getdents64.
func (dir *Dirent_t) listFrom(idx int) ([]dirEntryOut, defs.Err_t) {
	var out []dirEntryOut
	off, i := 0, 0
	for {
		e, err := dir.scanAt(off)
		if err == -defs.ENOENT {
			break
		}
		if err != 0 {
			return out, err
		}
		if i >= idx {
			out = append(out, dirEntryOut{name: e.name, attr: e.attr, cluster: e.startCluster})
		}
		off = e.nextOff
		i++
	}
	return out, 0
}

type dirEntryOut struct {
	name    string
	attr    uint8
	cluster uint32
}

// createChild allocates a cluster, writes name's disk entries into dir's
// data (growing it if needed), and — for a new directory — seeds it
// with an (unused but written, matching create_file) empty first
// cluster. Returns the cached Dirent_t for the new child.
func (dir *Dirent_t) createChild(name string, attr uint8) (*Dirent_t, defs.Err_t) {
	if _, err := dir.findByName(name); err == 0 {
		return nil, -defs.EEXIST
	} else if err != -defs.ENOENT {
		return nil, err
	}

	cluster, err := dir.fs.allocCluster()
	if err != 0 {
		return nil, err
	}
	if attr&attrDir != 0 {
		for i := 0; i < dir.fs.sectorsPerCluster; i++ {
			b, gerr := dir.fs.cache.Get(dir.fs.dev, dir.fs.clusterStartBlock(cluster)+i)
			if gerr != 0 {
				dir.fs.freeCluster(cluster)
				return nil, gerr
			}
			b.Lock()
			clear(b.Data[:])
			b.Unlock()
			b.MarkDirty()
			dir.fs.cache.Put(b)
		}
	}

	entries := buildEntries(name, cluster, attr)
	groupOff, werr := dir.appendEntries(entries)
	if werr != 0 {
		dir.fs.freeCluster(cluster)
		return nil, werr
	}
	shortOff := groupOff + (len(entries)-1)*32

	child := &Dirent_t{
		fs:            dir.fs,
		name:          name,
		attr:          attr,
		startCluster:  cluster,
		parentCluster: dir.startCluster,
		groupOff:      groupOff,
		shortOff:      shortOff,
		clusterChain:  []uint32{cluster},
	}
	dir.fs.direntMu.Lock()
	dir.fs.dirents[cluster] = &direntRef{d: child, refs: 1}
	dir.fs.direntMu.Unlock()
	return child, 0
}

// appendEntries writes entries (each 32 bytes) into the first empty run
// at or beyond dir's current logical end, growing dir to fit, grounded
// on find_empty_slot + write_raw_dentry (simplified: this driver never
// reclaims mid-file gaps left by deletes, matching original_source's own
// todo comment on find_empty_slot).
func (dir *Dirent_t) appendEntries(entries [][32]byte) (int, defs.Err_t) {
	dir.mu.Lock()
	offset := int(dir.size)
	dir.mu.Unlock()

	for i, e := range entries {
		if _, err := dir.writeAt(offset+i*32, e[:]); err != 0 {
			return 0, err
		}
	}
	// terminate with an empty marker one slot past what was written
	// (writeAt grows the chain if that slot starts a new cluster), then
	// set the size back so the marker is not counted and the next append
	// overwrites it.
	var empty [32]byte
	dir.writeAt(offset+len(entries)*32, empty[:]) //nolint:errcheck // best-effort end marker
	if err := dir.setSizeOnDisk(offset + len(entries)*32); err != 0 {
		return 0, err
	}
	return offset, 0
}

// deleteChild marks name's entries deleted on disk; if the corresponding
// Dirent_t is cached and still open, the chain free is deferred to its
// last Close (spec.md §4.5's "refcount controls when a deleted file's
// cluster chain is actually freed").
func (dir *Dirent_t) deleteChild(name string, wantDir bool) defs.Err_t {
	e, err := dir.findByName(name)
	if err != 0 {
		return err
	}
	isDir := e.attr&attrDir != 0
	if wantDir && !isDir {
		return -defs.ENOTDIR
	}
	if !wantDir && isDir {
		return -defs.EISDIR
	}
	if isDir {
		child := dir.fs.lookupDirent(e, dir.startCluster)
		// this driver seeds no "." / ".." entries (path resolution never
		// asks the filesystem to resolve those components — see
		// bpath.Canonicalize), so every listed entry is a real child.
		entries, lerr := child.listFrom(0)
		dir.fs.releaseDirent(child)
		if lerr != 0 {
			return lerr
		}
		if len(entries) > 0 {
			return -defs.ENOTEMPTY
		}
	}

	for off := e.groupOff; off <= e.shortOff; off += 32 {
		var tomb [32]byte
		tomb[0] = entryDelete
		if _, werr := dir.writeAt(off, tomb[:]); werr != 0 {
			return werr
		}
	}

	dir.fs.direntMu.Lock()
	r, cached := dir.fs.dirents[e.startCluster]
	dir.fs.direntMu.Unlock()
	if cached {
		r.d.mu.Lock()
		r.d.deleted = true
		r.d.mu.Unlock()
		return 0
	}
	return dir.fs.freeChain(e.startCluster)
}

// renameChild moves oldname out of dir and writes an equivalent entry
// (same starting cluster and attribute, so the data itself never moves)
// into newdir under newname, then tombstones the old entry — the
// directory-entry-level analogue of a hardlink retarget, since this
// filesystem has no separate inode table to repoint.
func (dir *Dirent_t) renameChild(oldname string, newdir *Dirent_t, newname string) defs.Err_t {
	e, err := dir.findByName(oldname)
	if err != 0 {
		return err
	}
	if _, ferr := newdir.findByName(newname); ferr == 0 {
		return -defs.EEXIST
	} else if ferr != -defs.ENOENT {
		return ferr
	}

	entries := buildEntries(e.name, e.startCluster, e.attr)
	if newname != e.name {
		entries = buildEntries(newname, e.startCluster, e.attr)
	}
	util.Writen(entries[len(entries)-1][:], 4, sOffSize, int(e.size))
	groupOff, werr := newdir.appendEntries(entries)
	if werr != 0 {
		return werr
	}
	newShortOff := groupOff + (len(entries)-1)*32

	for off := e.groupOff; off <= e.shortOff; off += 32 {
		var tomb [32]byte
		tomb[0] = entryDelete
		if _, terr := dir.writeAt(off, tomb[:]); terr != 0 {
			return terr
		}
	}

	dir.fs.direntMu.Lock()
	if r, ok := dir.fs.dirents[e.startCluster]; ok {
		r.d.mu.Lock()
		r.d.name = newname
		r.d.parentCluster = newdir.startCluster
		r.d.groupOff = groupOff
		r.d.shortOff = newShortOff
		r.d.mu.Unlock()
	}
	dir.fs.direntMu.Unlock()
	return 0
}
