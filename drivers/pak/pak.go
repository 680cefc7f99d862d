// Package pak reads and writes Quake style PACK archives: a 12 byte header
// pointing at a flat directory of 64 byte entries with slash separated
// names.
package pak

import (
	"bytes"
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/mogaika/hlpack/errs"
	"github.com/mogaika/hlpack/pack"
	"github.com/mogaika/hlpack/stream"
	"github.com/mogaika/hlpack/vfs"
)

type Format struct{}

func New() *Format { return &Format{} }

func (*Format) Type() pack.Type { return pack.TypePAK }

func (*Format) Probe(s stream.Stream) bool {
	magic := pack.ProbeMagic(s)
	return len(magic) >= 4 && bytes.Equal(magic[:4], []byte(MAGIC))
}

func (*Format) Parse(s stream.Stream, ctx *pack.ParseContext) (*pack.Tree, error) {
	if s.Size() < RAW_HEADER_SIZE {
		return nil, errs.Format("[pak] '%s' truncated header", s.Name())
	}
	var hb [RAW_HEADER_SIZE]byte
	if err := stream.ReadFull(s, hb[:], 0); err != nil {
		return nil, err
	}
	if !bytes.Equal(hb[:4], []byte(MAGIC)) {
		return nil, errs.Format("[pak] '%s' bad magic %q", s.Name(), hb[:4])
	}
	var h Header
	h.FromBuf(hb[:])
	if h.DirectoryLength%RAW_ENTRY_SIZE != 0 {
		return nil, errs.Format("[pak] '%s' directory length %d is not a multiple of %d",
			s.Name(), h.DirectoryLength, RAW_ENTRY_SIZE)
	}
	if !stream.InBounds(s, int64(h.DirectoryOffset), int64(h.DirectoryLength)) {
		return nil, errs.Format("[pak] '%s' directory [0x%x+0x%x] outside of package",
			s.Name(), h.DirectoryOffset, h.DirectoryLength)
	}

	dir := make([]byte, h.DirectoryLength)
	if err := stream.ReadFull(s, dir, int64(h.DirectoryOffset)); err != nil {
		return nil, err
	}

	tree := pack.NewTree(pack.TypePAK, s)
	tree.Encoding = ctx.Encoding
	count := len(dir) / RAW_ENTRY_SIZE
	log.Debugf("[pak] '%s': %d entries", s.Name(), count)
	for i := 0; i < count; i++ {
		var e Entry
		e.FromBuf(ctx.Encoding, dir[i*RAW_ENTRY_SIZE:])
		if err := addEntry(tree, uint32(i), &e); err != nil {
			return nil, errs.WrapFormat(err, "[pak] '%s' entry %d", s.Name(), i)
		}
	}
	return tree, nil
}

func addEntry(tree *pack.Tree, id uint32, e *Entry) error {
	parts := vfs.SplitPath(e.Name)
	if len(parts) == 0 {
		return errs.Format("empty name")
	}
	folder := tree.Root
	for _, part := range parts[:len(parts)-1] {
		var err error
		if folder, err = folder.EnsureFolder(part); err != nil {
			return err
		}
	}
	f := vfs.NewFile(parts[len(parts)-1], id, int64(e.Length))
	if e.Length != 0 {
		f.Fragments = []vfs.Fragment{{Offset: int64(e.Offset), Size: int64(e.Length)}}
	}
	return folder.AddFile(f)
}

// Serialize writes the header, every file in traversal order and then the
// directory.
func (*Format) Serialize(t *pack.Tree, target stream.Stream) error {
	files := t.Root.Files()
	offset := int64(RAW_HEADER_SIZE)
	dir := make([]byte, 0, len(files)*RAW_ENTRY_SIZE)
	for _, f := range files {
		data, err := t.ReadFile(f)
		if err != nil {
			return err
		}
		if offset+int64(len(data)) > math.MaxUint32 {
			return errs.Unsupported("[pak] package exceeds 4 GiB")
		}
		e := Entry{Name: vfs.Path(f), Offset: uint32(offset), Length: uint32(len(data))}
		raw, err := e.Marshal(t.Encoding)
		if err != nil {
			return errs.WrapFormat(err, "[pak] '%s'", e.Name)
		}
		if _, err := target.WriteAt(data, offset); err != nil {
			return errs.WrapIO(err, "[pak] writing '%s'", e.Name)
		}
		dir = append(dir, raw...)
		offset += int64(len(data))
	}
	h := Header{DirectoryOffset: uint32(offset), DirectoryLength: uint32(len(dir))}
	if _, err := target.WriteAt(dir, offset); err != nil {
		return errs.WrapIO(err, "[pak] writing directory")
	}
	if _, err := target.WriteAt(h.Marshal(), 0); err != nil {
		return errs.WrapIO(err, "[pak] writing header")
	}
	return nil
}
