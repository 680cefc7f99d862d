package vpk

import (
	"bytes"
	"hash/crc32"
	"math"
	"strings"

	"github.com/mogaika/hlpack/errs"
	"github.com/mogaika/hlpack/pack"
	"github.com/mogaika/hlpack/stream"
	"github.com/mogaika/hlpack/vfs"
)

type treeFile struct {
	name  string
	entry Entry
}

type treePath struct {
	path  string
	files []treeFile
}

type treeExt struct {
	ext   string
	paths []*treePath
	index map[string]*treePath
}

func splitName(name string) (string, string) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 || i == len(name)-1 {
		return name, NO_NAME
	}
	return name[:i], name[i+1:]
}

// Serialize writes a single file package: the tree followed by every file's
// data in traversal order, all stored in the directory file.
func (*Format) Serialize(t *pack.Tree, target stream.Stream) error {
	h := Header{Version: 1}
	if attrs, ok := t.Attributes.(*PackageAttributes); ok && attrs.Version == 2 {
		h.Version = 2
	}

	exts := make([]*treeExt, 0)
	extIndex := make(map[string]*treeExt)
	files := t.Root.Files()
	contents := make([][]byte, len(files))
	var dataSize int64

	for i, f := range files {
		data, err := t.ReadFile(f)
		if err != nil {
			return err
		}
		if dataSize+int64(len(data)) > math.MaxUint32 {
			return errs.Unsupported("[vpk] package data exceeds 4 GiB")
		}
		contents[i] = data

		crc := crc32.ChecksumIEEE(data)
		if f.Checksum != nil && f.Checksum.Kind == vfs.ChecksumCRC32 {
			crc = f.Checksum.CRC
		}
		name, ext := splitName(f.Name())
		folder := vfs.Path(f.Parent())
		if folder == "" {
			folder = NO_NAME
		}

		te, ok := extIndex[ext]
		if !ok {
			te = &treeExt{ext: ext, index: make(map[string]*treePath)}
			extIndex[ext] = te
			exts = append(exts, te)
		}
		tp, ok := te.index[folder]
		if !ok {
			tp = &treePath{path: folder}
			te.index[folder] = tp
			te.paths = append(te.paths, tp)
		}
		tp.files = append(tp.files, treeFile{name: name, entry: Entry{
			CRC:          crc,
			ArchiveIndex: DIR_ARCHIVE_INDEX,
			EntryOffset:  uint32(dataSize),
			EntryLength:  uint32(len(data)),
		}})
		dataSize += int64(len(data))
	}

	var buf bytes.Buffer
	cstr := func(s string) {
		buf.WriteString(s)
		buf.WriteByte(0)
	}
	for _, te := range exts {
		cstr(te.ext)
		for _, tp := range te.paths {
			cstr(tp.path)
			for _, tf := range tp.files {
				cstr(tf.name)
				buf.Write(tf.entry.Marshal())
			}
			buf.WriteByte(0)
		}
		buf.WriteByte(0)
	}
	buf.WriteByte(0)

	h.TreeSize = uint32(buf.Len())
	if h.Version == 2 {
		h.FileDataSectionSize = uint32(dataSize)
	}
	if _, err := target.WriteAt(h.Marshal(), 0); err != nil {
		return errs.WrapIO(err, "[vpk] writing header")
	}
	if _, err := target.WriteAt(buf.Bytes(), h.Size()); err != nil {
		return errs.WrapIO(err, "[vpk] writing tree")
	}
	offset := h.Size() + int64(buf.Len())
	for i, data := range contents {
		if _, err := target.WriteAt(data, offset); err != nil {
			return errs.WrapIO(err, "[vpk] writing '%s'", vfs.Path(files[i]))
		}
		offset += int64(len(data))
	}
	return nil
}
