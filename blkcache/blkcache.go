// Package blkcache implements the write-back block cache (component 5 of
// spec.md §2): a bounded FIFO keyed by (device-id, block-id), handing out
// reference-counted buffers. Adapted from the teacher's fs.Bdev_block_t /
// cache-of-Objref_t shape in fs/blk.go, generalized from the teacher's
// single-disk assumption to a device-id-qualified key so devfs/fat32/procfs
// can all share one cache instance.
package blkcache

import (
	"container/list"
	"fmt"
	"sync"

	"oops/blockdev"
	"oops/defs"
)

// Debug gates verbose cache logging, matching fs/blk.go's bdev_debug gate.
var Debug = false

type key struct {
	dev int
	blk int
}

// Block is a cached disk block: a reference-counted, mutex-guarded byte
// buffer plus dirty/pin bookkeeping, the same responsibilities as the
// teacher's Bdev_block_t.
type Block struct {
	sync.Mutex
	Dev   int
	Blkno int
	Data  [blockdev.BSIZE]byte
	dirty bool
	refs  int
}

// Cache is a bounded FIFO eviction cache. On a miss when full, it evicts
// the oldest entry that no caller holds (refs == 0: refs counts only the
// outstanding Get callers, not the cache's own hold) (spec.md §4.4);
// if none qualifies, it panics — "a real kernel would block; for the
// target workload the bound is generous", spec.md's own words for why
// this isn't treated as a recoverable error.
type Cache struct {
	sync.Mutex
	disks map[int]blockdev.BlockDevice
	cap   int
	order *list.List // FIFO of *Block, oldest at Front
	idx   map[key]*list.Element
}

// New creates a cache bounded to cap blocks.
func New(cap int) *Cache {
	return &Cache{
		disks: make(map[int]blockdev.BlockDevice),
		cap:   cap,
		order: list.New(),
		idx:   make(map[key]*list.Element),
	}
}

// Register associates a device id with the BlockDevice backing it; devfs
// and fat32 both call this once per mounted device.
func (c *Cache) Register(dev int, bd blockdev.BlockDevice) {
	c.Lock()
	defer c.Unlock()
	c.disks[dev] = bd
}

// Get returns the cached block (dev, blkno), reading it from disk on a
// miss, with its reference count bumped — callers must call Put when
// done.
func (c *Cache) Get(dev, blkno int) (*Block, defs.Err_t) {
	c.Lock()
	k := key{dev, blkno}
	if e, ok := c.idx[k]; ok {
		b := e.Value.(*Block)
		b.refs++
		c.Unlock()
		return b, 0
	}
	bd, ok := c.disks[dev]
	if !ok {
		c.Unlock()
		return nil, -defs.ENODEV
	}
	if c.order.Len() >= c.cap {
		if !c.evictOneLocked() {
			c.Unlock()
			panic("blkcache: full and nothing evictable")
		}
	}
	b := &Block{Dev: dev, Blkno: blkno, refs: 1}
	c.Unlock()

	if err := bd.ReadBlock(blkno, b.Data[:]); err != 0 {
		return nil, err
	}

	c.Lock()
	if e, ok := c.idx[k]; ok {
		// another goroutine raced us and won; drop our read, share theirs.
		e.Value.(*Block).refs++
		c.Unlock()
		return e.Value.(*Block), 0
	}
	el := c.order.PushBack(b)
	c.idx[k] = el
	c.Unlock()
	if Debug {
		fmt.Printf("blkcache: miss dev=%d blk=%d\n", dev, blkno)
	}
	return b, 0
}

// evictOneLocked evicts the oldest entry with refs == 0, writing it back
// first if dirty. Caller holds c's lock. Returns false if none qualifies.
func (c *Cache) evictOneLocked() bool {
	for e := c.order.Front(); e != nil; e = e.Next() {
		b := e.Value.(*Block)
		b.Lock()
		if b.refs != 0 {
			b.Unlock()
			continue
		}
		if b.dirty {
			if bd, ok := c.disks[b.Dev]; ok {
				bd.WriteBlock(b.Blkno, b.Data[:])
			}
		}
		b.Unlock()
		c.order.Remove(e)
		delete(c.idx, key{b.Dev, b.Blkno})
		return true
	}
	return false
}

// Put releases a reference to b, acquired via Get.
func (c *Cache) Put(b *Block) {
	c.Lock()
	b.refs--
	if b.refs < 0 {
		c.Unlock()
		panic("blkcache: over-released block")
	}
	c.Unlock()
}

// MarkDirty flags b for write-back on eviction or Sync.
func (b *Block) MarkDirty() {
	b.Lock()
	b.dirty = true
	b.Unlock()
}

// Sync writes back every dirty block for dev, used by fsync(2).
func (c *Cache) Sync(dev int) defs.Err_t {
	c.Lock()
	bd, ok := c.disks[dev]
	if !ok {
		c.Unlock()
		return -defs.ENODEV
	}
	var blocks []*Block
	for e := c.order.Front(); e != nil; e = e.Next() {
		b := e.Value.(*Block)
		if b.Dev == dev {
			blocks = append(blocks, b)
		}
	}
	c.Unlock()

	for _, b := range blocks {
		b.Lock()
		if b.dirty {
			if err := bd.WriteBlock(b.Blkno, b.Data[:]); err != 0 {
				b.Unlock()
				return err
			}
			b.dirty = false
		}
		b.Unlock()
	}
	return bd.Sync()
}
