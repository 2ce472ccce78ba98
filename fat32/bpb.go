// Package fat32 implements the on-disk filesystem spec.md §4.5 calls
// "deliberately simplified: one partition, one FAT, no free-cluster
// hint." It is grounded on original_source's kernel/src/fs/fat32
// driver, adapted to this kernel's shared blkcache.Cache rather than
// a private per-sector cache, and to blkcache's 4096-byte block as the
// unit this driver calls a "sector" (blockdev.BSIZE, not the
// traditional 512 — there is no separate logical-sector concept here,
// so the BPB this package writes and parses reflects the cache's own
// block size).
package fat32

import (
	"oops/blockdev"
	"oops/util"
)

const (
	bytesPerBlock = blockdev.BSIZE
	direntSize    = 32
	direntsPerBlk = bytesPerBlock / direntSize
	fatEntrySize  = 4
	fatEntriesPer = bytesPerBlock / fatEntrySize

	bootSignatureOff = 510
	bootSignature    = 0xAA55
)

// bpb is this driver's reading of the BIOS Parameter Block plus the
// FAT32 Extended BPB, grounded on original_source's bpb.rs layout:
// bytes_per_sector/sectors_per_cluster/reserved_sectors/fat_num/
// total_sectors at BPB offset 0x0B, then sectors_per_table/
// root_dir_cluster/fsinfo_sector at EBPB offset 0x24.
type bpb struct {
	bytesPerSector    uint16
	sectorsPerCluster uint8
	reservedSectors   uint16
	fatNum            uint8
	totalSectors      uint32

	sectorsPerFAT uint32
	rootCluster   uint32
	fsinfoSector  uint16
}

const (
	offBytesPerSector    = 0x0B
	offSectorsPerCluster = 0x0D
	offReservedSectors   = 0x0E
	offFatNum            = 0x10
	offTotalSectors      = 0x20
	offSectorsPerFAT32   = 0x24
	offRootCluster       = 0x2C
	offFsinfoSector      = 0x30
)

// decodeBPB parses a boot-sector block previously read through the
// block cache.
func decodeBPB(blk []byte) bpb {
	var b bpb
	b.bytesPerSector = uint16(util.Readn(blk, 2, offBytesPerSector))
	b.sectorsPerCluster = uint8(util.Readn(blk, 1, offSectorsPerCluster))
	b.reservedSectors = uint16(util.Readn(blk, 2, offReservedSectors))
	b.fatNum = uint8(util.Readn(blk, 1, offFatNum))
	b.totalSectors = uint32(util.Readn(blk, 4, offTotalSectors))
	b.sectorsPerFAT = uint32(util.Readn(blk, 4, offSectorsPerFAT32))
	b.rootCluster = uint32(util.Readn(blk, 4, offRootCluster))
	b.fsinfoSector = uint16(util.Readn(blk, 2, offFsinfoSector))
	return b
}

// encodeBPB writes b into blk, the format side Format uses to lay down a
// fresh filesystem image.
func encodeBPB(blk []byte, b bpb) {
	util.Writen(blk, 2, offBytesPerSector, int(b.bytesPerSector))
	util.Writen(blk, 1, offSectorsPerCluster, int(b.sectorsPerCluster))
	util.Writen(blk, 2, offReservedSectors, int(b.reservedSectors))
	util.Writen(blk, 1, offFatNum, int(b.fatNum))
	util.Writen(blk, 4, offTotalSectors, int(b.totalSectors))
	util.Writen(blk, 4, offSectorsPerFAT32, int(b.sectorsPerFAT))
	util.Writen(blk, 4, offRootCluster, int(b.rootCluster))
	util.Writen(blk, 2, offFsinfoSector, int(b.fsinfoSector))
	util.Writen(blk, 2, bootSignatureOff, bootSignature)
}
