package gcf

import (
	"bytes"
	"encoding/binary"

	"github.com/mogaika/hlpack/config"
	"github.com/mogaika/hlpack/errs"
	"github.com/mogaika/hlpack/utils"
	"github.com/mogaika/hlpack/vfs"
)

type dirItem struct {
	node  vfs.Node
	entry DirectoryEntry
	// checksum map index, NO_CHECKSUM for folders and files without one
	checksum uint32
	chunks   []uint32
}

// flatten lays the tree out in preorder with root first and links every
// item to its parent, first child and next sibling.
func flatten(root *vfs.Folder) []*dirItem {
	items := []*dirItem{{node: root, entry: DirectoryEntry{ParentIndex: 0xffffffff}, checksum: NO_CHECKSUM}}
	var walk func(folder *vfs.Folder, index uint32)
	walk = func(folder *vfs.Folder, index uint32) {
		prev := -1
		for _, c := range folder.Children() {
			ci := uint32(len(items))
			items = append(items, &dirItem{node: c, entry: DirectoryEntry{ParentIndex: index}, checksum: NO_CHECKSUM})
			if prev < 0 {
				items[index].entry.FirstIndex = ci
			} else {
				items[prev].entry.NextIndex = ci
			}
			prev = int(ci)
			if sub, ok := c.(*vfs.Folder); ok {
				walk(sub, ci)
			}
		}
		items[index].entry.ItemSize = uint32(len(folder.Children()))
	}
	walk(root, 0)
	return items
}

func itemFlags(n vfs.Node) uint32 {
	var flags uint32
	switch v := n.(type) {
	case *vfs.File:
		if attrs, ok := v.Attributes.(*ItemAttributes); ok {
			flags = attrs.Flags
		}
		flags |= FLAG_FILE
	case *vfs.Folder:
		if attrs, ok := v.Attributes.(*ItemAttributes); ok {
			flags = attrs.Flags &^ FLAG_FILE
		}
	}
	return flags
}

// fileChecksums keeps existing chunk checksums of the right chunk size and
// computes them from complete data otherwise. Files that carry no checksum
// keep none.
func fileChecksums(f *vfs.File, data []byte) ([]uint32, bool) {
	c := f.Checksum
	switch {
	case c == nil:
		return nil, false
	case c.Kind == vfs.ChecksumChunked && c.ChunkSize == CHECKSUM_CHUNK:
		return c.Chunks, true
	case int64(len(data)) != f.Size:
		return nil, false
	}
	return vfs.ComputeChunked(data, CHECKSUM_CHUNK), true
}

// encodeDirectory returns the directory section: header, entries, names,
// info tables and copy table. items must come from flatten with checksum
// indices assigned.
func encodeDirectory(items []*dirItem, enc config.Encoding, cacheID, lastVersion uint32) ([]byte, error) {
	names := bytes.NewBuffer([]byte{0})
	copies := make([]uint32, 0)
	var fileCount uint32
	for i, item := range items {
		item.entry.DirectoryFlags = itemFlags(item.node)
		item.entry.ChecksumIndex = item.checksum
		if i == 0 {
			item.entry.NameOffset = 0
			continue
		}
		item.entry.NameOffset = uint32(names.Len())
		name, err := utils.StringToBytes(enc, item.node.Name(), true)
		if err != nil {
			return nil, errs.WrapFormat(err, "[gcf] '%s'", vfs.Path(item.node))
		}
		names.Write(name)
		if f, ok := item.node.(*vfs.File); ok {
			fileCount++
			item.entry.ItemSize = uint32(f.Size)
			if item.entry.DirectoryFlags&FLAG_COPY_LOCAL != 0 {
				copies = append(copies, uint32(i))
			}
		}
	}

	h := DirectoryHeader{
		Dummy0:            4,
		CacheID:           cacheID,
		LastVersionPlayed: lastVersion,
		ItemCount:         uint32(len(items)),
		FileCount:         fileCount,
		ChunkSize:         CHECKSUM_CHUNK,
		NameSize:          uint32(names.Len()),
		Info1Count:        0,
		CopyCount:         uint32(len(copies)),
		LocalCount:        0,
	}
	size := RAW_DIRECTORY_HEADER_SIZE + len(items)*RAW_DIRECTORY_ENTRY_SIZE + names.Len() +
		4*len(items) + 4*len(copies)
	h.DirectorySize = uint32(size)

	buf := make([]byte, 0, size)
	buf = append(buf, h.Marshal()...)
	entry := make([]byte, RAW_DIRECTORY_ENTRY_SIZE)
	for _, item := range items {
		item.entry.MarshalTo(entry)
		buf = append(buf, entry...)
	}
	buf = append(buf, names.Bytes()...)
	buf = append(buf, make([]byte, 4*len(items))...) // info2
	for _, c := range copies {
		buf = binary.LittleEndian.AppendUint32(buf, c)
	}
	return buf, nil
}

// encodeDirectoryMap returns the map header and one value per item.
func encodeDirectoryMap(values []uint32) []byte {
	buf := make([]byte, RAW_DIRECTORY_MAP_HEADER, RAW_DIRECTORY_MAP_HEADER+4*len(values))
	putU32s(buf, 1, 0)
	for _, v := range values {
		buf = binary.LittleEndian.AppendUint32(buf, v)
	}
	return buf
}

// encodeChecksums returns the checksum section for items that carry chunk
// checksums, signature included.
func encodeChecksums(items []*dirItem) []byte {
	mapEntries := make([][2]uint32, 0)
	checksums := make([]uint32, 0)
	for _, item := range items {
		if item.checksum == NO_CHECKSUM {
			continue
		}
		mapEntries = append(mapEntries, [2]uint32{uint32(len(item.chunks)), uint32(len(checksums))})
		checksums = append(checksums, item.chunks...)
	}
	body := RAW_CHECKSUM_MAP_HEADER_SIZE + len(mapEntries)*RAW_CHECKSUM_MAP_ENTRY_SIZE + 4*len(checksums) + SIGNATURE_SIZE
	buf := make([]byte, RAW_CHECKSUM_HEADER_SIZE+RAW_CHECKSUM_MAP_HEADER_SIZE, RAW_CHECKSUM_HEADER_SIZE+body)
	putU32s(buf, 1, uint32(body), CHECKSUM_MAP_MAGIC, 1, uint32(len(mapEntries)), uint32(len(checksums)))
	for _, m := range mapEntries {
		buf = binary.LittleEndian.AppendUint32(buf, m[0])
		buf = binary.LittleEndian.AppendUint32(buf, m[1])
	}
	for _, c := range checksums {
		buf = binary.LittleEndian.AppendUint32(buf, c)
	}
	return append(buf, make([]byte, SIGNATURE_SIZE)...)
}
