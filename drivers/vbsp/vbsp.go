// Package vbsp reads Source engine maps. Every non empty lump is exposed
// as lumps/lump_NN.lmp and the pakfile lump is parsed as an embedded zip
// whose contents join the root.
package vbsp

import (
	"bytes"
	"encoding/binary"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/mogaika/hlpack/codec"
	"github.com/mogaika/hlpack/drivers/zip"
	"github.com/mogaika/hlpack/errs"
	"github.com/mogaika/hlpack/pack"
	"github.com/mogaika/hlpack/stream"
	"github.com/mogaika/hlpack/vfs"
)

const (
	MAGIC           = "VBSP"
	LUMP_COUNT      = 64
	RAW_LUMP_SIZE   = 16
	RAW_HEADER_SIZE = 8 + LUMP_COUNT*RAW_LUMP_SIZE + 4

	LUMP_PAKFILE = 40

	LZMA_MAGIC       = "LZMA"
	LZMA_HEADER_SIZE = 12

	LumpFolder = "lumps"
)

type Lump struct {
	Offset  uint32
	Length  uint32
	Version uint32
	FourCC  uint32
}

func (l *Lump) FromBuf(b []byte) {
	l.Offset = binary.LittleEndian.Uint32(b[0:])
	l.Length = binary.LittleEndian.Uint32(b[4:])
	l.Version = binary.LittleEndian.Uint32(b[8:])
	l.FourCC = binary.LittleEndian.Uint32(b[12:])
}

type Header struct {
	Version     uint32
	Lumps       [LUMP_COUNT]Lump
	MapRevision uint32
}

func (h *Header) FromBuf(b []byte) {
	h.Version = binary.LittleEndian.Uint32(b[4:])
	for i := range h.Lumps {
		h.Lumps[i].FromBuf(b[8+i*RAW_LUMP_SIZE:])
	}
	h.MapRevision = binary.LittleEndian.Uint32(b[8+LUMP_COUNT*RAW_LUMP_SIZE:])
}

type PackageAttributes struct {
	Version     uint32
	MapRevision uint32
}

func (a *PackageAttributes) Fields() []vfs.Attribute {
	return []vfs.Attribute{
		{Name: "Version", Value: a.Version},
		{Name: "Map Revision", Value: a.MapRevision},
	}
}

type LumpAttributes struct {
	Version uint32
	FourCC  uint32
}

func (a *LumpAttributes) Fields() []vfs.Attribute {
	return []vfs.Attribute{
		{Name: "Version", Value: a.Version},
		{Name: "FourCC", Value: a.FourCC, Hex: true},
	}
}

type Format struct{}

func New() *Format { return &Format{} }

func (*Format) Type() pack.Type { return pack.TypeVBSP }

func (*Format) Probe(s stream.Stream) bool {
	magic := pack.ProbeMagic(s)
	return len(magic) >= 4 && bytes.Equal(magic[:4], []byte(MAGIC))
}

func LumpName(index int) string {
	return fmt.Sprintf("lump_%02d.lmp", index)
}

func (*Format) Parse(s stream.Stream, ctx *pack.ParseContext) (*pack.Tree, error) {
	if s.Size() < RAW_HEADER_SIZE {
		return nil, errs.Format("[vbsp] '%s' truncated header", s.Name())
	}
	hb := make([]byte, RAW_HEADER_SIZE)
	if err := stream.ReadFull(s, hb, 0); err != nil {
		return nil, err
	}
	if !bytes.Equal(hb[:4], []byte(MAGIC)) {
		return nil, errs.Format("[vbsp] '%s' bad magic %q", s.Name(), hb[:4])
	}
	var h Header
	h.FromBuf(hb)
	log.Debugf("[vbsp] '%s': version %d, map revision %d", s.Name(), h.Version, h.MapRevision)

	tree := pack.NewTree(pack.TypeVBSP, s)
	tree.Encoding = ctx.Encoding
	tree.Attributes = &PackageAttributes{Version: h.Version, MapRevision: h.MapRevision}

	lumps, err := tree.Root.AddFolder(LumpFolder, 0)
	if err != nil {
		return nil, err
	}
	for i, l := range h.Lumps {
		if l.Length == 0 {
			continue
		}
		f := vfs.NewFile(LumpName(i), uint32(i), int64(l.Length))
		f.Fragments = []vfs.Fragment{{Offset: int64(l.Offset), Size: int64(l.Length)}}
		f.Attributes = &LumpAttributes{Version: l.Version, FourCC: l.FourCC}
		if l.FourCC != 0 && i != LUMP_PAKFILE {
			describeCompressedLump(s, &l, f)
		}
		if err := lumps.AddFile(f); err != nil {
			return nil, errs.WrapFormat(err, "[vbsp] '%s'", s.Name())
		}
	}

	pak := h.Lumps[LUMP_PAKFILE]
	if pak.Length != 0 {
		if !stream.InBounds(s, int64(pak.Offset), int64(pak.Length)) {
			log.Warnf("[vbsp] '%s' pakfile lump lies outside of the map", s.Name())
			return tree, nil
		}
		section, err := stream.NewSection(s, s.Name()+":pakfile", int64(pak.Offset), int64(pak.Length))
		if err != nil {
			return nil, err
		}
		dir, err := zip.ReadDirectory(section, ctx.Encoding)
		if err != nil {
			return nil, errs.WrapFormat(err, "[vbsp] '%s' pakfile", s.Name())
		}
		if err := dir.Populate(tree.Root, 0, int64(pak.Offset), tree.Codecs); err != nil {
			return nil, errs.WrapFormat(err, "[vbsp] '%s' pakfile", s.Name())
		}
	}
	return tree, nil
}

// describeCompressedLump turns an LZMA lump into a compressed file whose
// fragment holds the properties and the raw stream.
func describeCompressedLump(s stream.Stream, l *Lump, f *vfs.File) {
	if l.Length < LZMA_HEADER_SIZE+5 {
		return
	}
	var b [LZMA_HEADER_SIZE]byte
	if stream.ReadFull(s, b[:], int64(l.Offset)) != nil || !bytes.Equal(b[:4], []byte(LZMA_MAGIC)) {
		return
	}
	actual := binary.LittleEndian.Uint32(b[4:])
	f.Size = int64(actual)
	f.Compression = codec.LZMA
	f.Fragments = []vfs.Fragment{{
		Offset: int64(l.Offset) + LZMA_HEADER_SIZE,
		Size:   int64(l.Length) - LZMA_HEADER_SIZE,
	}}
}
