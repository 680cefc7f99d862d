package gcf

import (
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/mogaika/hlpack/errs"
	"github.com/mogaika/hlpack/pack"
	"github.com/mogaika/hlpack/stream"
	"github.com/mogaika/hlpack/utils"
	"github.com/mogaika/hlpack/vfs"
)

// WriteOptions control the block allocation of a written GCF.
type WriteOptions struct {
	// BlockSize defaults to the source package's block size, then to
	// DEFAULT_BLOCK_SIZE.
	BlockSize uint32
	// Interleave hands out blocks to files round robin instead of giving
	// each file a contiguous run, producing a fragmented cache.
	Interleave bool
}

// storedContents returns the bytes of f that exist. Partially downloaded
// files keep their item size and only the blocks that were stored.
func storedContents(t *pack.Tree, f *vfs.File) ([]byte, error) {
	if f.Compressed() {
		return t.ReadFile(f)
	}
	data, err := t.ReadStored(f)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > f.Size {
		return nil, errs.Format("[gcf] '%s' stores %d bytes, larger than its size %d", vfs.Path(f), len(data), f.Size)
	}
	if int64(len(data)) < f.Size {
		log.Debugf("[gcf] '%s' is incomplete, keeping %d of %d bytes", vfs.Path(f), len(data), f.Size)
	}
	return data, nil
}

func (f *Format) Serialize(t *pack.Tree, target stream.Stream) error {
	return f.SerializeWith(t, target, WriteOptions{})
}

// SerializeWith writes a version 1.6 GCF with one block entry per file.
func (*Format) SerializeWith(t *pack.Tree, target stream.Stream, opts WriteOptions) error {
	var cacheID, lastVersion uint32
	blockSize := opts.BlockSize
	if attrs, ok := t.Attributes.(*PackageAttributes); ok {
		cacheID, lastVersion = attrs.CacheID, attrs.LastVersionPlayed
		if blockSize == 0 {
			blockSize = attrs.BlockLength
		}
	}
	if blockSize == 0 {
		blockSize = DEFAULT_BLOCK_SIZE
	}

	items := flatten(t.Root)
	contents := make(map[uint32][]byte)
	var checksumIndex uint32
	for i, item := range items {
		f, ok := item.node.(*vfs.File)
		if !ok {
			continue
		}
		data, err := storedContents(t, f)
		if err != nil {
			return err
		}
		if len(data) > math.MaxUint32 {
			return errs.Unsupported("[gcf] '%s' exceeds 4 GiB", vfs.Path(f))
		}
		if chunks, ok := fileChecksums(f, data); ok {
			item.chunks = chunks
			item.checksum = checksumIndex
			checksumIndex++
		}
		contents[uint32(i)] = data
	}

	// logical blocks of every file with data, in item order
	type fileBlocks struct {
		item   uint32
		blocks []uint32
	}
	files := make([]*fileBlocks, 0)
	var blockCount uint32
	for i := range items {
		if data := contents[uint32(i)]; len(data) != 0 {
			n := uint32(utils.GetRequiredBlocksCount(int64(len(data)), int64(blockSize)))
			files = append(files, &fileBlocks{item: uint32(i), blocks: make([]uint32, 0, n)})
			blockCount += n
		}
	}
	var next uint32
	if opts.Interleave {
		for remaining := true; remaining; {
			remaining = false
			for _, fb := range files {
				need := uint32(utils.GetRequiredBlocksCount(int64(len(contents[fb.item])), int64(blockSize)))
				if uint32(len(fb.blocks)) < need {
					fb.blocks = append(fb.blocks, next)
					next++
					remaining = true
				}
			}
		}
	} else {
		for _, fb := range files {
			need := uint32(utils.GetRequiredBlocksCount(int64(len(contents[fb.item])), int64(blockSize)))
			for j := uint32(0); j < need; j++ {
				fb.blocks = append(fb.blocks, next)
				next++
			}
		}
	}

	const endOfChain = 0xffffffff
	blockEntries := make([]BlockEntry, blockCount)
	fragMap := make([]uint32, blockCount)
	for i := range fragMap {
		fragMap[i] = endOfChain
	}
	dirMap := make([]uint32, len(items))
	for i := range dirMap {
		dirMap[i] = blockCount
	}
	for i, fb := range files {
		blockEntries[i] = BlockEntry{
			EntryFlags:              BLOCK_ENTRY_USED | 0x4,
			FileDataOffset:          0,
			FileDataSize:            uint32(len(contents[fb.item])),
			FirstDataBlockIndex:     fb.blocks[0],
			NextBlockEntryIndex:     blockCount,
			PreviousBlockEntryIndex: blockCount,
			DirectoryIndex:          fb.item,
		}
		for j := 0; j+1 < len(fb.blocks); j++ {
			fragMap[fb.blocks[j]] = fb.blocks[j+1]
		}
		dirMap[fb.item] = uint32(i)
	}

	directory, err := encodeDirectory(items, t.Encoding, cacheID, lastVersion)
	if err != nil {
		return err
	}
	directoryMap := encodeDirectoryMap(dirMap)
	checksums := encodeChecksums(items)

	beh := BlockEntryHeader{BlockCount: blockCount, BlocksUsed: uint32(len(files))}
	fmh := FragmentationMapHeader{BlockCount: blockCount, FirstUnusedEntry: blockCount, Terminator: 1}

	buf := make([]byte, 0, 1024)
	buf = append(buf, make([]byte, RAW_HEADER_SIZE)...)
	buf = append(buf, beh.Marshal()...)
	entry := make([]byte, RAW_BLOCK_ENTRY_SIZE)
	for i := range blockEntries {
		blockEntries[i].MarshalTo(entry)
		buf = append(buf, entry...)
	}
	buf = append(buf, fmh.Marshal()...)
	for _, v := range fragMap {
		buf = append(buf, 0, 0, 0, 0)
		putU32s(buf[len(buf)-4:], v)
	}
	buf = append(buf, directory...)
	buf = append(buf, directoryMap...)
	buf = append(buf, checksums...)

	dataStart := int64(len(buf) + RAW_DATA_HEADER_SIZE)
	fileSize := dataStart + int64(blockCount)*int64(blockSize)
	if fileSize > math.MaxUint32 {
		return errs.Unsupported("[gcf] cache exceeds 4 GiB")
	}
	dbh := DataBlockHeader{
		LastVersionPlayed: lastVersion,
		BlockCount:        blockCount,
		BlockSize:         blockSize,
		FirstBlockOffset:  uint32(dataStart),
		BlocksUsed:        blockCount,
	}
	buf = append(buf, dbh.Marshal()...)

	h := Header{
		Dummy0:            1,
		MajorVersion:      GCF_MAJOR_VERSION,
		MinorVersion:      6,
		CacheID:           cacheID,
		LastVersionPlayed: lastVersion,
		FileSize:          uint32(fileSize),
		BlockSize:         blockSize,
		BlockCount:        blockCount,
	}
	copy(buf, h.Marshal())
	if _, err := target.WriteAt(buf, 0); err != nil {
		return errs.WrapIO(err, "[gcf] writing directory")
	}

	block := make([]byte, blockSize)
	for _, fb := range files {
		data := contents[fb.item]
		for j, physical := range fb.blocks {
			n := copy(block, data[int64(j)*int64(blockSize):])
			for k := n; k < len(block); k++ {
				block[k] = 0
			}
			if _, err := target.WriteAt(block, dataStart+int64(physical)*int64(blockSize)); err != nil {
				return errs.WrapIO(err, "[gcf] writing block %d", physical)
			}
		}
	}
	return nil
}
