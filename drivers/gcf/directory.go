package gcf

import (
	"github.com/mogaika/hlpack/config"
	"github.com/mogaika/hlpack/errs"
	"github.com/mogaika/hlpack/readat"
	"github.com/mogaika/hlpack/stream"
	"github.com/mogaika/hlpack/utils"
	"github.com/mogaika/hlpack/vfs"
)

// directory is the part shared by GCF and NCF: the item tree, the
// directory map and the chunk checksums.
type directory struct {
	Header  DirectoryHeader
	Entries []DirectoryEntry
	Names   []byte
	// Map holds the first block entry of every item (GCF) and is unused by
	// NCF.
	Map []uint32

	ChecksumMap [][2]uint32 // count, first index
	Checksums   []uint32

	// End is the offset right after the checksum section.
	End int64
}

func readDirectory(s stream.Stream, off int64, hasMapHeader bool) (*directory, error) {
	r := readat.NewReader(s, off)
	d := &directory{}

	hv := r.Uint32s(0, RAW_DIRECTORY_HEADER_SIZE/4)
	if hv == nil {
		return nil, errs.WrapFormat(r.Err(), "[gcf] '%s' truncated directory header", s.Name())
	}
	d.Header.FromU32(hv)
	h := &d.Header

	if int64(h.ItemCount)*RAW_DIRECTORY_ENTRY_SIZE > s.Size() {
		return nil, errs.Format("[gcf] '%s' item count %d does not fit in the package", s.Name(), h.ItemCount)
	}
	pos := int64(RAW_DIRECTORY_HEADER_SIZE)
	raw := r.Uint32s(pos, h.ItemCount*7)
	pos += int64(h.ItemCount) * RAW_DIRECTORY_ENTRY_SIZE
	d.Names = r.Bytes(pos, int64(h.NameSize))
	pos += int64(h.NameSize)
	pos += 4 * (int64(h.Info1Count) + int64(h.ItemCount) + int64(h.CopyCount) + int64(h.LocalCount))
	if err := r.Err(); err != nil {
		return nil, errs.WrapFormat(err, "[gcf] '%s' truncated directory", s.Name())
	}
	if h.ItemCount == 0 {
		return nil, errs.Format("[gcf] '%s' directory has no root", s.Name())
	}
	if int64(h.DirectorySize) < pos {
		return nil, errs.Format("[gcf] '%s' directory size 0x%x smaller than its contents 0x%x",
			s.Name(), h.DirectorySize, pos)
	}
	d.Entries = make([]DirectoryEntry, h.ItemCount)
	for i := range d.Entries {
		d.Entries[i].FromU32(raw[i*7 : i*7+7])
	}

	pos = int64(h.DirectorySize)
	if hasMapHeader {
		pos += RAW_DIRECTORY_MAP_HEADER
	}
	d.Map = r.Uint32s(pos, h.ItemCount)
	pos += 4 * int64(h.ItemCount)

	// checksum header: dummy, size of the rest of the section
	checksumSize := r.ReadU32LE(pos + 4)
	pos += RAW_CHECKSUM_HEADER_SIZE
	sectionStart := pos
	mh := r.Uint32s(pos, RAW_CHECKSUM_MAP_HEADER_SIZE/4)
	pos += RAW_CHECKSUM_MAP_HEADER_SIZE
	if err := r.Err(); err != nil {
		return nil, errs.WrapFormat(err, "[gcf] '%s' truncated checksum header", s.Name())
	}
	if mh[0] != CHECKSUM_MAP_MAGIC {
		return nil, errs.Format("[gcf] '%s' bad checksum map magic 0x%x", s.Name(), mh[0])
	}
	mapCount, checksumCount := mh[2], mh[3]
	if int64(mapCount)*RAW_CHECKSUM_MAP_ENTRY_SIZE > s.Size() {
		return nil, errs.Format("[gcf] '%s' checksum map count %d does not fit in the package", s.Name(), mapCount)
	}
	mapRaw := r.Uint32s(pos, mapCount*2)
	pos += int64(mapCount) * RAW_CHECKSUM_MAP_ENTRY_SIZE
	d.Checksums = r.Uint32s(pos, checksumCount)
	if err := r.Err(); err != nil {
		return nil, errs.WrapFormat(err, "[gcf] '%s' truncated checksums", s.Name())
	}
	d.ChecksumMap = make([][2]uint32, mapCount)
	for i := range d.ChecksumMap {
		d.ChecksumMap[i] = [2]uint32{mapRaw[i*2], mapRaw[i*2+1]}
	}
	d.End = off + sectionStart + int64(checksumSize)
	return d, nil
}

func (d *directory) name(enc config.Encoding, e *DirectoryEntry) (string, error) {
	if int64(e.NameOffset) >= int64(len(d.Names)) {
		return "", errs.Format("[gcf] name offset 0x%x outside of name table", e.NameOffset)
	}
	return utils.BytesToString(enc, d.Names[e.NameOffset:]), nil
}

func (d *directory) checksum(e *DirectoryEntry) *vfs.Checksum {
	if e.ChecksumIndex == NO_CHECKSUM || int64(e.ChecksumIndex) >= int64(len(d.ChecksumMap)) {
		return nil
	}
	m := d.ChecksumMap[e.ChecksumIndex]
	count, first := int64(m[0]), int64(m[1])
	if first+count > int64(len(d.Checksums)) {
		return nil
	}
	chunks := make([]uint32, count)
	copy(chunks, d.Checksums[first:first+count])
	chunkSize := int64(d.Header.ChunkSize)
	if chunkSize == 0 {
		chunkSize = CHECKSUM_CHUNK
	}
	return vfs.NewChunkedChecksum(chunkSize, chunks)
}

// build creates the folders and files below root. onFile completes each
// file (fragments, attributes) before it is attached.
func (d *directory) build(root *vfs.Folder, enc config.Encoding, onFile func(index uint32, e *DirectoryEntry, f *vfs.File) error) error {
	count := uint32(len(d.Entries))
	if d.Entries[0].IsFile() {
		return errs.Format("[gcf] root item is a file")
	}
	visited := make([]bool, count)
	visited[0] = true

	var visit func(folder *vfs.Folder, index uint32) error
	visit = func(folder *vfs.Folder, index uint32) error {
		for child := d.Entries[index].FirstIndex; child != 0; child = d.Entries[child].NextIndex {
			if child >= count || visited[child] {
				return errs.Format("[gcf] item %d has a broken child chain at %d", index, child)
			}
			visited[child] = true
			e := &d.Entries[child]
			name, err := d.name(enc, e)
			if err != nil {
				return err
			}
			if e.IsFile() {
				f := vfs.NewFile(name, child, int64(e.ItemSize))
				f.Checksum = d.checksum(e)
				if err := onFile(child, e, f); err != nil {
					return err
				}
				if err := folder.AddFile(f); err != nil {
					return err
				}
			} else {
				sub, err := folder.AddFolder(name, child)
				if err != nil {
					return err
				}
				sub.Attributes = &ItemAttributes{Flags: e.DirectoryFlags}
				if err := visit(sub, child); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return visit(root, 0)
}
