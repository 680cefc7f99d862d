package gcf

import (
	"encoding/binary"
)

const (
	GCF_MAJOR_VERSION = 1
	NCF_MAJOR_VERSION = 2

	RAW_HEADER_SIZE              = 11 * 4
	RAW_BLOCK_ENTRY_HEADER_SIZE  = 8 * 4
	RAW_BLOCK_ENTRY_SIZE         = 7 * 4
	RAW_FRAGMAP_HEADER_SIZE      = 4 * 4
	RAW_BLOCK_ENTRY_MAP_HEADER   = 5 * 4
	RAW_BLOCK_ENTRY_MAP_SIZE     = 2 * 4
	RAW_DIRECTORY_HEADER_SIZE    = 14 * 4
	RAW_DIRECTORY_ENTRY_SIZE     = 7 * 4
	RAW_DIRECTORY_MAP_HEADER     = 2 * 4
	RAW_CHECKSUM_HEADER_SIZE     = 2 * 4
	RAW_CHECKSUM_MAP_HEADER_SIZE = 4 * 4
	RAW_CHECKSUM_MAP_ENTRY_SIZE  = 2 * 4
	RAW_DATA_HEADER_SIZE         = 6 * 4
	RAW_DATA_HEADER_OLD_SIZE     = 5 * 4
	SIGNATURE_SIZE               = 0x80

	CHECKSUM_MAP_MAGIC = 0x14893721
	CHECKSUM_CHUNK     = 0x8000
	NO_CHECKSUM        = 0xffffffff

	DEFAULT_BLOCK_SIZE = 0x2000
)

// directory entry flags
const (
	FLAG_FILE                    = 0x00004000
	FLAG_ENCRYPTED               = 0x00000100
	FLAG_BACKUP_LOCAL            = 0x00000040
	FLAG_COPY_LOCAL              = 0x0000000a
	FLAG_COPY_LOCAL_NO_OVERWRITE = 0x00000001
)

const BLOCK_ENTRY_USED = 0x00008000

func putU32s(b []byte, values ...uint32) {
	for i, v := range values {
		binary.LittleEndian.PutUint32(b[i*4:], v)
	}
}

func sum(values ...uint32) uint32 {
	var result uint32
	for _, v := range values {
		result += v
	}
	return result
}

type Header struct {
	Dummy0            uint32
	MajorVersion      uint32
	MinorVersion      uint32
	CacheID           uint32
	LastVersionPlayed uint32
	Dummy1            uint32
	Dummy2            uint32
	FileSize          uint32
	BlockSize         uint32
	BlockCount        uint32
	Dummy3            uint32
}

func (h *Header) FromU32(v []uint32) {
	h.Dummy0, h.MajorVersion, h.MinorVersion, h.CacheID = v[0], v[1], v[2], v[3]
	h.LastVersionPlayed, h.Dummy1, h.Dummy2, h.FileSize = v[4], v[5], v[6], v[7]
	h.BlockSize, h.BlockCount, h.Dummy3 = v[8], v[9], v[10]
}

func (h *Header) Marshal() []byte {
	buf := make([]byte, RAW_HEADER_SIZE)
	putU32s(buf, h.Dummy0, h.MajorVersion, h.MinorVersion, h.CacheID, h.LastVersionPlayed,
		h.Dummy1, h.Dummy2, h.FileSize, h.BlockSize, h.BlockCount, h.Dummy3)
	return buf
}

type BlockEntryHeader struct {
	BlockCount uint32
	BlocksUsed uint32
	Dummy      [5]uint32
	Checksum   uint32
}

func (h *BlockEntryHeader) FromU32(v []uint32) {
	h.BlockCount, h.BlocksUsed = v[0], v[1]
	copy(h.Dummy[:], v[2:7])
	h.Checksum = v[7]
}

func (h *BlockEntryHeader) Marshal() []byte {
	buf := make([]byte, RAW_BLOCK_ENTRY_HEADER_SIZE)
	h.Checksum = sum(h.BlockCount, h.BlocksUsed) + sum(h.Dummy[:]...)
	putU32s(buf, h.BlockCount, h.BlocksUsed, h.Dummy[0], h.Dummy[1], h.Dummy[2], h.Dummy[3], h.Dummy[4], h.Checksum)
	return buf
}

type BlockEntry struct {
	EntryFlags              uint32
	FileDataOffset          uint32
	FileDataSize            uint32
	FirstDataBlockIndex     uint32
	NextBlockEntryIndex     uint32
	PreviousBlockEntryIndex uint32
	DirectoryIndex          uint32
}

func (e *BlockEntry) FromU32(v []uint32) {
	e.EntryFlags, e.FileDataOffset, e.FileDataSize = v[0], v[1], v[2]
	e.FirstDataBlockIndex, e.NextBlockEntryIndex = v[3], v[4]
	e.PreviousBlockEntryIndex, e.DirectoryIndex = v[5], v[6]
}

func (e *BlockEntry) MarshalTo(buf []byte) {
	putU32s(buf, e.EntryFlags, e.FileDataOffset, e.FileDataSize, e.FirstDataBlockIndex,
		e.NextBlockEntryIndex, e.PreviousBlockEntryIndex, e.DirectoryIndex)
}

type FragmentationMapHeader struct {
	BlockCount       uint32
	FirstUnusedEntry uint32
	// Terminator 0 ends chains with 0xffff, otherwise with 0xffffffff.
	Terminator uint32
	Checksum   uint32
}

func (h *FragmentationMapHeader) FromU32(v []uint32) {
	h.BlockCount, h.FirstUnusedEntry, h.Terminator, h.Checksum = v[0], v[1], v[2], v[3]
}

func (h *FragmentationMapHeader) EndOfChain() uint32 {
	if h.Terminator == 0 {
		return 0x0000ffff
	}
	return 0xffffffff
}

func (h *FragmentationMapHeader) Marshal() []byte {
	buf := make([]byte, RAW_FRAGMAP_HEADER_SIZE)
	h.Checksum = sum(h.BlockCount, h.FirstUnusedEntry, h.Terminator)
	putU32s(buf, h.BlockCount, h.FirstUnusedEntry, h.Terminator, h.Checksum)
	return buf
}

type DirectoryHeader struct {
	Dummy0            uint32
	CacheID           uint32
	LastVersionPlayed uint32
	ItemCount         uint32
	FileCount         uint32
	ChunkSize         uint32
	DirectorySize     uint32
	NameSize          uint32
	Info1Count        uint32
	CopyCount         uint32
	LocalCount        uint32
	Dummy2            uint32
	Dummy3            uint32
	Checksum          uint32
}

func (h *DirectoryHeader) FromU32(v []uint32) {
	h.Dummy0, h.CacheID, h.LastVersionPlayed, h.ItemCount = v[0], v[1], v[2], v[3]
	h.FileCount, h.ChunkSize, h.DirectorySize, h.NameSize = v[4], v[5], v[6], v[7]
	h.Info1Count, h.CopyCount, h.LocalCount = v[8], v[9], v[10]
	h.Dummy2, h.Dummy3, h.Checksum = v[11], v[12], v[13]
}

func (h *DirectoryHeader) Marshal() []byte {
	buf := make([]byte, RAW_DIRECTORY_HEADER_SIZE)
	putU32s(buf, h.Dummy0, h.CacheID, h.LastVersionPlayed, h.ItemCount, h.FileCount, h.ChunkSize,
		h.DirectorySize, h.NameSize, h.Info1Count, h.CopyCount, h.LocalCount, h.Dummy2, h.Dummy3, h.Checksum)
	return buf
}

type DirectoryEntry struct {
	NameOffset     uint32
	ItemSize       uint32
	ChecksumIndex  uint32
	DirectoryFlags uint32
	ParentIndex    uint32
	NextIndex      uint32
	FirstIndex     uint32
}

func (e *DirectoryEntry) FromU32(v []uint32) {
	e.NameOffset, e.ItemSize, e.ChecksumIndex, e.DirectoryFlags = v[0], v[1], v[2], v[3]
	e.ParentIndex, e.NextIndex, e.FirstIndex = v[4], v[5], v[6]
}

func (e *DirectoryEntry) MarshalTo(buf []byte) {
	putU32s(buf, e.NameOffset, e.ItemSize, e.ChecksumIndex, e.DirectoryFlags,
		e.ParentIndex, e.NextIndex, e.FirstIndex)
}

func (e *DirectoryEntry) IsFile() bool { return e.DirectoryFlags&FLAG_FILE != 0 }

type DataBlockHeader struct {
	LastVersionPlayed uint32
	BlockCount        uint32
	BlockSize         uint32
	FirstBlockOffset  uint32
	BlocksUsed        uint32
	Checksum          uint32
}

func (h *DataBlockHeader) FromU32(v []uint32, withVersion bool) {
	if !withVersion {
		v = append([]uint32{0}, v...)
	}
	h.LastVersionPlayed, h.BlockCount, h.BlockSize = v[0], v[1], v[2]
	h.FirstBlockOffset, h.BlocksUsed, h.Checksum = v[3], v[4], v[5]
}

func (h *DataBlockHeader) Marshal() []byte {
	buf := make([]byte, RAW_DATA_HEADER_SIZE)
	h.Checksum = sum(h.BlockCount, h.BlockSize, h.FirstBlockOffset, h.BlocksUsed)
	putU32s(buf, h.LastVersionPlayed, h.BlockCount, h.BlockSize, h.FirstBlockOffset, h.BlocksUsed, h.Checksum)
	return buf
}
