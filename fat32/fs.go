package fat32

import (
	"sync"

	"oops/blkcache"
	"oops/blockdev"
	"oops/defs"
	"oops/util"
	"oops/vfs"
)

// Cluster value classes, grounded on original_source's cluster_type():
// the top 4 bits of a FAT32 entry are reserved, so only the low 28 bits
// classify the entry.
const (
	clusterMask     = 0x0FFFFFFF
	clusterFree     = 0x00000000
	clusterDataMin  = 0x00000002
	clusterDataMax  = 0x0FFFFFEF
	clusterEndMin   = 0x0FFFFFF8
	clusterEndMax   = 0x0FFFFFFF
	clusterEndValue = 0x0FFFFFF8 // written to terminate a chain

	rootDirCluster = 2

	// freeCacheMax bounds the free-cluster cache the same way
	// original_source's CLUSTER_CACHE_SIZE does.
	freeCacheMax = 4096
)

type clusterKind int

const (
	kindFree clusterKind = iota
	kindData
	kindEnd
	kindOther
)

func classify(v uint32) clusterKind {
	v &= clusterMask
	switch {
	case v == clusterFree:
		return kindFree
	case v >= clusterDataMin && v <= clusterDataMax:
		return kindData
	case v >= clusterEndMin && v <= clusterEndMax:
		return kindEnd
	default:
		return kindOther
	}
}

// FileSystem_t is one mounted FAT32 volume: the parsed BPB, the shared
// block cache it reads/writes through, a bounded free-cluster cache, and
// a dirent cache keyed by starting cluster so concurrent opens of the
// same file share one Dirent_t and its refcount governs when a deleted
// file's chain is actually freed (spec.md §4.5).
type FileSystem_t struct {
	dev   int
	cache *blkcache.Cache
	fsid  vfs.FsId

	bpb               bpb
	fatStartBlk       int
	fatEndBlk         int
	dataStartBlk      int
	sectorsPerCluster int

	freeMu   sync.Mutex
	freeList []uint32

	direntMu sync.Mutex
	dirents  map[uint32]*direntRef

	root *Dirent_t
}

type direntRef struct {
	d    *Dirent_t
	refs int
}

// Mount reads the boot block of dev through cache and parses it into a
// mounted FileSystem_t, grounded on original_source's
// FAT32FileSystem::init (the root_dir_cluster==2 and
// bytes_per_sector==blockdev.BSIZE invariants it asserts there become
// plain error returns here instead of panics, since a corrupt image
// isn't a kernel-invariant violation).
func Mount(dev int, cache *blkcache.Cache, fsid vfs.FsId) (*FileSystem_t, defs.Err_t) {
	boot, err := cache.Get(dev, 0)
	if err != 0 {
		return nil, err
	}
	boot.Lock()
	if util.Readn(boot.Data[:], 2, bootSignatureOff) != bootSignature {
		boot.Unlock()
		cache.Put(boot)
		return nil, -defs.EINVAL
	}
	b := decodeBPB(boot.Data[:])
	boot.Unlock()
	cache.Put(boot)

	if b.bytesPerSector != bytesPerBlock || b.rootCluster != rootDirCluster {
		return nil, -defs.EINVAL
	}

	fs := &FileSystem_t{
		dev:               dev,
		cache:             cache,
		fsid:              fsid,
		bpb:               b,
		fatStartBlk:       int(b.reservedSectors),
		fatEndBlk:         int(b.reservedSectors) + int(b.sectorsPerFAT),
		dataStartBlk:      int(b.reservedSectors) + int(b.fatNum)*int(b.sectorsPerFAT),
		sectorsPerCluster: int(b.sectorsPerCluster),
		dirents:           make(map[uint32]*direntRef),
	}
	fs.root = fs.newDirent("/", rootDirCluster, defs.S_IFDIR, 0)
	fs.dirents[rootDirCluster] = &direntRef{d: fs.root, refs: 1}
	if err := fs.root.recomputeSize(); err != 0 {
		return nil, err
	}
	return fs, 0
}

// Format lays down a fresh, empty FAT32 image on bd: BPB/EBPB, a single
// FAT with cluster 2 (the root directory) marked end-of-chain, and an
// empty root directory cluster. Grounded on original_source's init()
// invariants (root cluster 2, a single FAT) run in reverse.
func Format(bd blockdev.BlockDevice, sectorsPerCluster int) defs.Err_t {
	total := bd.NumBlocks()
	if total < 4 {
		return -defs.EINVAL
	}
	const reservedSectors = 1
	const fatNum = 1

	// Leave enough FAT entries to cover every data cluster; one FAT block
	// holds fatEntriesPer entries, one per cluster.
	dataBlocks := total - reservedSectors
	clusters := dataBlocks / sectorsPerCluster
	sectorsPerFAT := (clusters + fatEntriesPer - 1) / fatEntriesPer
	if sectorsPerFAT < 1 {
		sectorsPerFAT = 1
	}

	var boot [bytesPerBlock]byte
	encodeBPB(boot[:], bpb{
		bytesPerSector:    bytesPerBlock,
		sectorsPerCluster: uint8(sectorsPerCluster),
		reservedSectors:   reservedSectors,
		fatNum:            fatNum,
		totalSectors:      uint32(total),
		sectorsPerFAT:     uint32(sectorsPerFAT),
		rootCluster:       rootDirCluster,
		fsinfoSector:      0,
	})
	if err := bd.WriteBlock(0, boot[:]); err != 0 {
		return err
	}

	// The FAT table itself eats into the blocks available for data, so the
	// real cluster count is smaller than the dataBlocks/sectorsPerCluster
	// estimate used to size sectorsPerFAT above; entries for clusters past
	// this real count still exist (the FAT is block-granular) but must be
	// marked unusable, or refillFreeCache would later hand out a cluster
	// number with no backing block at all.
	dataStart := reservedSectors + fatNum*sectorsPerFAT
	realClusters := (total - dataStart) / sectorsPerCluster
	const badCluster = 0x0FFFFFF7

	fatStart := reservedSectors
	for i := 0; i < sectorsPerFAT; i++ {
		var zero [bytesPerBlock]byte
		base := i * fatEntriesPer
		for j := 0; j < fatEntriesPer; j++ {
			cluster := base + j
			if cluster >= rootDirCluster+realClusters {
				util.Writen(zero[:], 4, j*fatEntrySize, badCluster)
			}
		}
		if i == 0 {
			// cluster 0 and 1 are reserved media-descriptor entries;
			// cluster 2 (the root dir) starts life end-of-chain.
			util.Writen(zero[:], 4, 0, 0x0FFFFFF8)
			util.Writen(zero[:], 4, 4, 0x0FFFFFFF)
			util.Writen(zero[:], 4, rootDirCluster*fatEntrySize, int(clusterEndValue))
		}
		if err := bd.WriteBlock(fatStart+i, zero[:]); err != 0 {
			return err
		}
	}
	var empty [bytesPerBlock]byte
	for i := 0; i < sectorsPerCluster; i++ {
		if err := bd.WriteBlock(dataStart+i, empty[:]); err != 0 {
			return err
		}
	}
	return bd.Sync()
}

// Root satisfies vfs.FS_i, handing back a fresh handle (its own cursor,
// though directories never use one) onto the shared root Dirent_t, the
// same refcount-bump lookupDirent gives every other lookup.
func (fs *FileSystem_t) Root() vfs.Dirnode_i {
	fs.direntMu.Lock()
	if r, ok := fs.dirents[fs.root.startCluster]; ok {
		r.refs++
	}
	fs.direntMu.Unlock()
	return newHandle(fs.root)
}

// Sync flushes every dirty block belonging to this volume.
func (fs *FileSystem_t) Sync() defs.Err_t { return fs.cache.Sync(fs.dev) }

func (fs *FileSystem_t) Statistics() string { return "fat32" }

// clusterEntryPos returns the (block, byte-offset-within-block) of
// cluster's 4-byte FAT entry, grounded on
// FAT32FileSystem::get_cluster_entry_pos.
func (fs *FileSystem_t) clusterEntryPos(cluster uint32) (int, int) {
	blk := fs.fatStartBlk + int(cluster)/fatEntriesPer
	off := (int(cluster) % fatEntriesPer) * fatEntrySize
	return blk, off
}

// clusterStartBlock returns the first block-cache block of cluster's
// data, grounded on get_cluster_start_sector.
func (fs *FileSystem_t) clusterStartBlock(cluster uint32) int {
	return fs.dataStartBlk + (int(cluster)-rootDirCluster)*fs.sectorsPerCluster
}

func (fs *FileSystem_t) readClusterEntry(cluster uint32) (uint32, defs.Err_t) {
	blk, off := fs.clusterEntryPos(cluster)
	b, err := fs.cache.Get(fs.dev, blk)
	if err != 0 {
		return 0, err
	}
	b.Lock()
	v := uint32(util.Readn(b.Data[:], 4, off))
	b.Unlock()
	fs.cache.Put(b)
	return v, 0
}

func (fs *FileSystem_t) writeClusterEntry(cluster, val uint32) defs.Err_t {
	blk, off := fs.clusterEntryPos(cluster)
	b, err := fs.cache.Get(fs.dev, blk)
	if err != 0 {
		return err
	}
	b.Lock()
	util.Writen(b.Data[:], 4, off, int(val))
	b.Unlock()
	b.MarkDirty()
	fs.cache.Put(b)
	return 0
}

// nextCluster follows the chain one link, grounded on get_next_cluster;
// -defs.ENOSPC signals chain-end the way Error::CLUSTEREND did there.
func (fs *FileSystem_t) nextCluster(cluster uint32) (uint32, defs.Err_t) {
	v, err := fs.readClusterEntry(cluster)
	if err != 0 {
		return 0, err
	}
	switch classify(v) {
	case kindEnd:
		return 0, -defs.ENOSPC
	case kindFree, kindOther:
		return 0, -defs.EINVAL
	default:
		return v, 0
	}
}

// allocCluster claims one free cluster, preferring the in-memory
// free-cluster cache and falling back to a linear FAT scan, grounded on
// alloc_cluster_in_cache. The claimed cluster is immediately marked
// end-of-chain so a racing allocator can't double-claim it.
func (fs *FileSystem_t) allocCluster() (uint32, defs.Err_t) {
	fs.freeMu.Lock()
	if len(fs.freeList) == 0 {
		fs.freeMu.Unlock()
		if err := fs.refillFreeCache(); err != 0 {
			return 0, err
		}
		fs.freeMu.Lock()
	}
	if len(fs.freeList) == 0 {
		fs.freeMu.Unlock()
		return 0, -defs.ENOSPC
	}
	c := fs.freeList[0]
	fs.freeList = fs.freeList[1:]
	fs.freeMu.Unlock()

	if err := fs.writeClusterEntry(c, clusterEndValue); err != 0 {
		return 0, err
	}
	return c, 0
}

// refillFreeCache scans every FAT block for free entries, up to
// freeCacheMax of them, grounded on alloc_cluster_in_cache's scan loop.
func (fs *FileSystem_t) refillFreeCache() defs.Err_t {
	var found []uint32
	for blk := fs.fatStartBlk; blk < fs.fatEndBlk && len(found) < freeCacheMax; blk++ {
		b, err := fs.cache.Get(fs.dev, blk)
		if err != 0 {
			return err
		}
		b.Lock()
		base := (blk - fs.fatStartBlk) * fatEntriesPer
		for i := 0; i < fatEntriesPer; i++ {
			cluster := base + i
			if cluster < rootDirCluster {
				continue
			}
			v := uint32(util.Readn(b.Data[:], 4, i*fatEntrySize))
			if classify(v) == kindFree {
				found = append(found, uint32(cluster))
				if len(found) >= freeCacheMax {
					break
				}
			}
		}
		b.Unlock()
		fs.cache.Put(b)
	}
	fs.freeMu.Lock()
	fs.freeList = append(fs.freeList, found...)
	fs.freeMu.Unlock()
	if len(found) == 0 {
		return -defs.ENOSPC
	}
	return 0
}

// freeCluster marks one cluster free again.
func (fs *FileSystem_t) freeCluster(cluster uint32) defs.Err_t {
	return fs.writeClusterEntry(cluster, clusterFree)
}

// freeChain walks and frees every cluster starting at start, grounded on
// free_cluster_chain.
func (fs *FileSystem_t) freeChain(start uint32) defs.Err_t {
	cur := start
	for {
		next, nerr := fs.nextCluster(cur)
		if ferr := fs.freeCluster(cur); ferr != 0 {
			return ferr
		}
		if nerr == -defs.ENOSPC {
			return 0
		}
		if nerr != 0 {
			return nerr
		}
		cur = next
	}
}

// extendChain appends a freshly allocated cluster to the end of a chain
// whose current last link is last, linking last -> new cluster.
func (fs *FileSystem_t) extendChain(last uint32) (uint32, defs.Err_t) {
	c, err := fs.allocCluster()
	if err != 0 {
		return 0, err
	}
	if err := fs.writeClusterEntry(last, c); err != 0 {
		return 0, err
	}
	return c, 0
}
