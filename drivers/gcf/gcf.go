// Package gcf reads Steam cache files. GCF files store item data in fixed
// size blocks chained through a fragmentation map; NCF files share the
// directory and checksum layout but keep item data as plain files under a
// root directory.
package gcf

import (
	"encoding/binary"

	log "github.com/sirupsen/logrus"

	"github.com/mogaika/hlpack/errs"
	"github.com/mogaika/hlpack/pack"
	"github.com/mogaika/hlpack/readat"
	"github.com/mogaika/hlpack/stream"
	"github.com/mogaika/hlpack/vfs"
)

type Format struct{}

func New() *Format { return &Format{} }

func (*Format) Type() pack.Type { return pack.TypeGCF }

func probeVersion(s stream.Stream, major uint32) bool {
	magic := pack.ProbeMagic(s)
	return len(magic) == 8 &&
		binary.LittleEndian.Uint32(magic[0:]) == 1 &&
		binary.LittleEndian.Uint32(magic[4:]) == major
}

func (*Format) Probe(s stream.Stream) bool {
	return probeVersion(s, GCF_MAJOR_VERSION)
}

func readHeader(s stream.Stream, major uint32, minMinor, maxMinor uint32) (Header, error) {
	var h Header
	if s.Size() < RAW_HEADER_SIZE {
		return h, errs.Format("[gcf] '%s' truncated header", s.Name())
	}
	v := readat.NewReader(s, 0).Uint32s(0, RAW_HEADER_SIZE/4)
	if v == nil {
		return h, errs.IO("[gcf] '%s' cannot read header", s.Name())
	}
	h.FromU32(v)
	if h.Dummy0 != 1 || h.MajorVersion != major {
		return h, errs.Format("[gcf] '%s' bad signature %d.%d", s.Name(), h.Dummy0, h.MajorVersion)
	}
	if h.MinorVersion < minMinor || h.MinorVersion > maxMinor {
		return h, errs.Format("[gcf] '%s' unsupported version %d.%d", s.Name(), h.MajorVersion, h.MinorVersion)
	}
	return h, nil
}

// layout is the decoded block allocation of a GCF file.
type layout struct {
	Header           Header
	BlockEntryHeader BlockEntryHeader
	BlockEntries     []BlockEntry
	FragMapHeader    FragmentationMapHeader
	FragMap          []uint32
	Directory        *directory
	DataHeader       DataBlockHeader
}

func readLayout(s stream.Stream) (*layout, error) {
	h, err := readHeader(s, GCF_MAJOR_VERSION, 3, 6)
	if err != nil {
		return nil, err
	}
	l := &layout{Header: h}
	r := readat.NewReader(s, 0)
	pos := int64(RAW_HEADER_SIZE)

	if v := r.Uint32s(pos, RAW_BLOCK_ENTRY_HEADER_SIZE/4); v != nil {
		l.BlockEntryHeader.FromU32(v)
	}
	pos += RAW_BLOCK_ENTRY_HEADER_SIZE
	if err := r.Err(); err != nil {
		return nil, errs.WrapFormat(err, "[gcf] '%s' truncated block entry header", s.Name())
	}
	count := l.BlockEntryHeader.BlockCount
	if int64(count)*RAW_BLOCK_ENTRY_SIZE > s.Size() {
		return nil, errs.Format("[gcf] '%s' block count %d does not fit in the package", s.Name(), count)
	}
	raw := r.Uint32s(pos, count*7)
	pos += int64(count) * RAW_BLOCK_ENTRY_SIZE

	if v := r.Uint32s(pos, RAW_FRAGMAP_HEADER_SIZE/4); v != nil {
		l.FragMapHeader.FromU32(v)
	}
	pos += RAW_FRAGMAP_HEADER_SIZE
	if err := r.Err(); err != nil {
		return nil, errs.WrapFormat(err, "[gcf] '%s' truncated block entries", s.Name())
	}
	if int64(l.FragMapHeader.BlockCount)*4 > s.Size() {
		return nil, errs.Format("[gcf] '%s' fragmentation map count %d does not fit in the package",
			s.Name(), l.FragMapHeader.BlockCount)
	}
	l.FragMap = r.Uint32s(pos, l.FragMapHeader.BlockCount)
	pos += 4 * int64(l.FragMapHeader.BlockCount)

	if h.MinorVersion < 6 {
		// block entry map, only kept by old versions
		mapCount := r.ReadU32LE(pos)
		pos += RAW_BLOCK_ENTRY_MAP_HEADER + int64(mapCount)*RAW_BLOCK_ENTRY_MAP_SIZE
	}
	if err := r.Err(); err != nil {
		return nil, errs.WrapFormat(err, "[gcf] '%s' truncated fragmentation map", s.Name())
	}

	l.BlockEntries = make([]BlockEntry, count)
	for i := range l.BlockEntries {
		l.BlockEntries[i].FromU32(raw[i*7 : i*7+7])
	}

	l.Directory, err = readDirectory(s, pos, h.MinorVersion >= 5)
	if err != nil {
		return nil, err
	}
	pos = l.Directory.End

	withVersion := h.MinorVersion >= 5
	n := uint32(RAW_DATA_HEADER_OLD_SIZE / 4)
	if withVersion {
		n = RAW_DATA_HEADER_SIZE / 4
	}
	v := r.Uint32s(pos, n)
	if v == nil {
		return nil, errs.WrapFormat(r.Err(), "[gcf] '%s' truncated data block header", s.Name())
	}
	l.DataHeader.FromU32(v, withVersion)
	if l.DataHeader.BlockSize == 0 {
		return nil, errs.Format("[gcf] '%s' zero block size", s.Name())
	}
	return l, nil
}

func (l *layout) blockOffset(index uint32) int64 {
	return int64(l.DataHeader.FirstBlockOffset) + int64(index)*int64(l.DataHeader.BlockSize)
}

// fileFragments follows the block entry chain of item index and then the
// data block chain of every block entry.
func (l *layout) fileFragments(index uint32, size int64) ([]vfs.Fragment, float64, error) {
	fragments := make([]vfs.Fragment, 0, 1)
	if int(index) >= len(l.Directory.Map) {
		return fragments, 0, nil
	}
	blockCount := uint32(len(l.FragMap))
	endOfChain := l.FragMapHeader.EndOfChain()
	blockSize := int64(l.DataHeader.BlockSize)

	var usedBlocks, fragmentedBlocks uint32
	var prevBlock int64 = -2
	visitedEntries := 0

	for be := l.Directory.Map[index]; be < uint32(len(l.BlockEntries)); {
		if visitedEntries > len(l.BlockEntries) {
			return nil, 0, errs.Format("[gcf] block entry chain loops for item %d", index)
		}
		visitedEntries++
		entry := &l.BlockEntries[be]
		if entry.EntryFlags&BLOCK_ENTRY_USED == 0 {
			break
		}
		remaining := int64(entry.FileDataSize)
		steps := uint32(0)
		for block := entry.FirstDataBlockIndex; remaining > 0 && block < blockCount && block != endOfChain; block = l.FragMap[block] {
			if steps > blockCount {
				return nil, 0, errs.Format("[gcf] data block chain loops for item %d", index)
			}
			steps++
			n := blockSize
			if remaining < n {
				n = remaining
			}
			offset := l.blockOffset(block)
			usedBlocks++
			if int64(block) != prevBlock+1 && prevBlock >= 0 {
				fragmentedBlocks++
			}
			prevBlock = int64(block)
			if last := len(fragments) - 1; last >= 0 && fragments[last].End() == offset {
				fragments[last].Size += n
			} else {
				fragments = append(fragments, vfs.Fragment{Offset: offset, Size: n})
			}
			remaining -= n
		}
		next := entry.NextBlockEntryIndex
		if next == be {
			break
		}
		be = next
	}

	var stored int64
	for _, fr := range fragments {
		stored += fr.Size
	}
	if stored > size {
		return nil, 0, errs.Format("[gcf] item %d stores %d bytes, larger than its size %d", index, stored, size)
	}
	fragmentation := 0.0
	if usedBlocks != 0 {
		fragmentation = float64(fragmentedBlocks) * 100 / float64(usedBlocks)
	}
	return fragments, fragmentation, nil
}

func (*Format) Parse(s stream.Stream, ctx *pack.ParseContext) (*pack.Tree, error) {
	l, err := readLayout(s)
	if err != nil {
		return nil, err
	}
	h := &l.Header
	log.Debugf("[gcf] '%s': version %d.%d, cache %d, %d items, %d blocks of 0x%x",
		s.Name(), h.MajorVersion, h.MinorVersion, h.CacheID,
		l.Directory.Header.ItemCount, l.DataHeader.BlockCount, l.DataHeader.BlockSize)

	tree := pack.NewTree(pack.TypeGCF, s)
	tree.Encoding = ctx.Encoding
	tree.Attributes = &PackageAttributes{
		Version:           h.MinorVersion,
		CacheID:           h.CacheID,
		AllocatedBlocks:   l.DataHeader.BlockCount,
		UsedBlocks:        l.DataHeader.BlocksUsed,
		BlockLength:       l.DataHeader.BlockSize,
		LastVersionPlayed: h.LastVersionPlayed,
	}
	tree.Root.Attributes = &ItemAttributes{Flags: l.Directory.Entries[0].DirectoryFlags}

	err = l.Directory.build(tree.Root, ctx.Encoding, func(index uint32, e *DirectoryEntry, f *vfs.File) error {
		fragments, fragmentation, err := l.fileFragments(index, f.Size)
		if err != nil {
			return err
		}
		f.Fragments = fragments
		attrs := &ItemAttributes{Flags: e.DirectoryFlags, Fragmentation: fragmentation, hasBlocks: true}
		f.Attributes = attrs
		// partially downloaded files cannot be extracted
		f.Extractable = !attrs.Encrypted() && f.SizeOnDisk() >= f.Size
		return nil
	})
	if err != nil {
		return nil, errs.WrapFormat(err, "[gcf] '%s'", s.Name())
	}
	return tree, nil
}
