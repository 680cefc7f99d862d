// Package wad reads and writes Half-Life WAD3 texture packages. Lumps are
// exposed as flat files named after the lump.
package wad

import (
	"bytes"
	"encoding/binary"
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/mogaika/hlpack/errs"
	"github.com/mogaika/hlpack/pack"
	"github.com/mogaika/hlpack/stream"
	"github.com/mogaika/hlpack/utils"
	"github.com/mogaika/hlpack/vfs"
)

type Format struct{}

func New() *Format { return &Format{} }

func (*Format) Type() pack.Type { return pack.TypeWAD }

func (*Format) Probe(s stream.Stream) bool {
	magic := pack.ProbeMagic(s)
	return len(magic) >= 4 && bytes.Equal(magic[:4], []byte(MAGIC))
}

func (*Format) Parse(s stream.Stream, ctx *pack.ParseContext) (*pack.Tree, error) {
	if s.Size() < RAW_HEADER_SIZE {
		return nil, errs.Format("[wad] '%s' truncated header", s.Name())
	}
	var hb [RAW_HEADER_SIZE]byte
	if err := stream.ReadFull(s, hb[:], 0); err != nil {
		return nil, err
	}
	if !bytes.Equal(hb[:4], []byte(MAGIC)) {
		return nil, errs.Format("[wad] '%s' bad magic %q", s.Name(), hb[:4])
	}
	var h Header
	h.FromBuf(hb[:])
	dirSize := int64(h.LumpCount) * RAW_LUMP_SIZE
	if !stream.InBounds(s, int64(h.LumpOffset), dirSize) {
		return nil, errs.Format("[wad] '%s' lump directory [0x%x+0x%x] outside of package",
			s.Name(), h.LumpOffset, dirSize)
	}
	dir := make([]byte, dirSize)
	if err := stream.ReadFull(s, dir, int64(h.LumpOffset)); err != nil {
		return nil, err
	}

	tree := pack.NewTree(pack.TypeWAD, s)
	tree.Encoding = ctx.Encoding
	tree.Attributes = &PackageAttributes{Version: 3}
	log.Debugf("[wad] '%s': %d lumps", s.Name(), h.LumpCount)

	for i := uint32(0); i < h.LumpCount; i++ {
		var l Lump
		l.FromBuf(ctx.Encoding, dir[i*RAW_LUMP_SIZE:])
		if l.Name == "" {
			return nil, errs.Format("[wad] '%s' lump %d has no name", s.Name(), i)
		}
		f := vfs.NewFile(l.Name, i, int64(l.Length))
		if l.DiskLength != 0 {
			f.Fragments = []vfs.Fragment{{Offset: int64(l.Offset), Size: int64(l.DiskLength)}}
		}
		attrs := &ItemAttributes{Type: l.Type, Compressed: l.Compression != 0}
		if attrs.Compressed {
			log.Warnf("[wad] '%s' lump '%s' uses unsupported compression %d", s.Name(), l.Name, l.Compression)
			f.Extractable = false
		} else {
			readImageInfo(s, &l, attrs)
		}
		if !attrs.Compressed && l.DiskLength < l.Length {
			log.Warnf("[wad] '%s' lump '%s' stores %d of %d bytes", s.Name(), l.Name, l.DiskLength, l.Length)
			f.Extractable = false
		}
		f.Attributes = attrs
		if err := tree.Root.AddFile(f); err != nil {
			return nil, errs.WrapFormat(err, "[wad] '%s'", s.Name())
		}
	}
	return tree, nil
}

// readImageInfo fills the image attributes from the lump headers that carry
// them. Lumps outside the stream are left blank.
func readImageInfo(s stream.Stream, l *Lump, attrs *ItemAttributes) {
	var b [NAME_SIZE + 8]byte
	switch l.Type {
	case LUMP_MIPTEX:
		if l.DiskLength < uint32(len(b)) || stream.ReadFull(s, b[:], int64(l.Offset)) != nil {
			return
		}
		attrs.Width = binary.LittleEndian.Uint32(b[NAME_SIZE:])
		attrs.Height = binary.LittleEndian.Uint32(b[NAME_SIZE+4:])
		attrs.Mipmaps = 4
	case LUMP_QPIC, LUMP_FONT:
		if l.DiskLength < 8 || stream.ReadFull(s, b[:8], int64(l.Offset)) != nil {
			return
		}
		attrs.Width = binary.LittleEndian.Uint32(b[0:])
		attrs.Height = binary.LittleEndian.Uint32(b[4:])
		attrs.Mipmaps = 1
	default:
		return
	}
	attrs.PaletteEntries = 256
}

// Serialize writes every file of the tree as a lump. WAD packages are flat,
// so files in sub folders keep only their name.
func (*Format) Serialize(t *pack.Tree, target stream.Stream) error {
	files := t.Root.Files()
	names := make(map[string]bool, len(files))
	offset := int64(RAW_HEADER_SIZE)
	dir := make([]byte, 0, len(files)*RAW_LUMP_SIZE)
	for _, f := range files {
		if names[f.Name()] {
			return errs.Format("[wad] duplicate lump name '%s'", f.Name())
		}
		names[f.Name()] = true

		var data []byte
		var err error
		l := Lump{Name: f.Name(), Type: LUMP_MIPTEX}
		if attrs, ok := f.Attributes.(*ItemAttributes); ok {
			l.Type = attrs.Type
			if attrs.Compressed {
				l.Compression = 1
			}
		}
		if l.Compression != 0 {
			// compressed lumps are copied as stored
			data, err = t.ReadStored(f)
			l.Length = uint32(f.Size)
		} else {
			data, err = t.ReadFile(f)
			l.Length = uint32(len(data))
		}
		if err != nil {
			return err
		}
		if offset+int64(len(data)) > math.MaxUint32 {
			return errs.Unsupported("[wad] package exceeds 4 GiB")
		}
		l.Offset = uint32(offset)
		l.DiskLength = uint32(len(data))
		raw, err := l.Marshal(t.Encoding)
		if err != nil {
			return errs.WrapFormat(err, "[wad] lump '%s'", l.Name)
		}
		if _, err := target.WriteAt(data, offset); err != nil {
			return errs.WrapIO(err, "[wad] writing '%s'", l.Name)
		}
		dir = append(dir, raw...)
		offset = utils.AlignUp(offset+int64(len(data)), 4)
	}
	h := Header{LumpCount: uint32(len(files)), LumpOffset: uint32(offset)}
	if _, err := target.WriteAt(dir, offset); err != nil {
		return errs.WrapIO(err, "[wad] writing lump directory")
	}
	if _, err := target.WriteAt(h.Marshal(), 0); err != nil {
		return errs.WrapIO(err, "[wad] writing header")
	}
	return nil
}
