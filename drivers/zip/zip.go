// Package zip reads zip packages through their central directory. Stored,
// deflate, bzip2, lzma and zstd entries are decoded by the codec package;
// the CRC of every entry covers the decoded data.
package zip

import (
	"encoding/binary"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/mogaika/hlpack/codec"
	"github.com/mogaika/hlpack/config"
	"github.com/mogaika/hlpack/errs"
	"github.com/mogaika/hlpack/pack"
	"github.com/mogaika/hlpack/stream"
	"github.com/mogaika/hlpack/utils"
	"github.com/mogaika/hlpack/vfs"
)

const FLAG_UTF8 = 0x800

type Format struct{}

func New() *Format { return &Format{} }

func (*Format) Type() pack.Type { return pack.TypeZIP }

func (*Format) Probe(s stream.Stream) bool {
	magic := pack.ProbeMagic(s)
	if len(magic) < 4 {
		return false
	}
	sig := binary.LittleEndian.Uint32(magic)
	return sig == LOCAL_SIGNATURE || sig == END_SIGNATURE
}

func (*Format) Parse(s stream.Stream, ctx *pack.ParseContext) (*pack.Tree, error) {
	dir, err := ReadDirectory(s, ctx.Encoding)
	if err != nil {
		return nil, err
	}
	tree := pack.NewTree(pack.TypeZIP, s)
	tree.Encoding = ctx.Encoding
	tree.Attributes = &PackageAttributes{Disk: uint32(dir.End.Disk), Comment: dir.Comment}
	if err := dir.Populate(tree.Root, 0, 0, tree.Codecs); err != nil {
		return nil, err
	}
	return tree, nil
}

// Entry is one central directory record with the resolved data offset.
type Entry struct {
	Header     CentralHeader
	Name       string
	Comment    string
	DataOffset int64
}

type Directory struct {
	End     EndOfCentralDirectory
	Comment string
	Entries []Entry
}

func findEnd(s stream.Stream) (int64, []byte, error) {
	size := s.Size()
	if size < RAW_END_SIZE {
		return 0, nil, errs.Format("[zip] '%s' too small for a zip package", s.Name())
	}
	window := int64(RAW_END_SIZE + MAX_COMMENT_SIZE)
	if window > size {
		window = size
	}
	tail := make([]byte, window)
	if err := stream.ReadFull(s, tail, size-window); err != nil {
		return 0, nil, err
	}
	for i := len(tail) - RAW_END_SIZE; i >= 0; i-- {
		if binary.LittleEndian.Uint32(tail[i:]) == END_SIGNATURE {
			return size - window + int64(i), tail[i:], nil
		}
	}
	return 0, nil, errs.Format("[zip] '%s' end of central directory not found", s.Name())
}

func decodeName(enc config.Encoding, flags uint16, b []byte) string {
	if flags&FLAG_UTF8 != 0 {
		return string(b)
	}
	return utils.BytesToString(enc, b)
}

// ReadDirectory decodes the central directory of a zip stored in s.
func ReadDirectory(s stream.Stream, enc config.Encoding) (*Directory, error) {
	_, endBuf, err := findEnd(s)
	if err != nil {
		return nil, err
	}
	var d Directory
	d.End.FromBuf(endBuf)
	if d.End.Disk != 0 || d.End.DirectoryDisk != 0 || d.End.DiskEntries != d.End.Entries {
		return nil, errs.Unsupported("[zip] '%s' spans several disks", s.Name())
	}
	if d.End.DirectoryOffset == 0xffffffff || d.End.Entries == 0xffff {
		return nil, errs.Unsupported("[zip] '%s' zip64 is not supported", s.Name())
	}
	if int(d.End.CommentLength) <= len(endBuf)-RAW_END_SIZE {
		d.Comment = decodeName(enc, 0, endBuf[RAW_END_SIZE:RAW_END_SIZE+int(d.End.CommentLength)])
	}
	if !stream.InBounds(s, int64(d.End.DirectoryOffset), int64(d.End.DirectorySize)) {
		return nil, errs.Format("[zip] '%s' central directory [0x%x+0x%x] outside of package",
			s.Name(), d.End.DirectoryOffset, d.End.DirectorySize)
	}
	cd := make([]byte, d.End.DirectorySize)
	if err := stream.ReadFull(s, cd, int64(d.End.DirectoryOffset)); err != nil {
		return nil, err
	}
	log.Debugf("[zip] '%s': %d entries", s.Name(), d.End.Entries)

	d.Entries = make([]Entry, 0, d.End.Entries)
	pos := 0
	for i := 0; i < int(d.End.Entries); i++ {
		if pos+RAW_CENTRAL_SIZE > len(cd) || binary.LittleEndian.Uint32(cd[pos:]) != CENTRAL_SIGNATURE {
			return nil, errs.Format("[zip] '%s' corrupt central directory at entry %d", s.Name(), i)
		}
		var e Entry
		e.Header.FromBuf(cd[pos:])
		h := &e.Header
		nameEnd := pos + RAW_CENTRAL_SIZE + int(h.NameLength)
		commentStart := nameEnd + int(h.ExtraLength)
		next := commentStart + int(h.CommentLength)
		if next > len(cd) {
			return nil, errs.Format("[zip] '%s' central directory entry %d truncated", s.Name(), i)
		}
		e.Name = decodeName(enc, h.Flags, cd[pos+RAW_CENTRAL_SIZE:nameEnd])
		e.Comment = decodeName(enc, h.Flags, cd[commentStart:next])
		if h.CompressedSize == 0xffffffff || h.UncompressedSize == 0xffffffff || h.LocalOffset == 0xffffffff {
			return nil, errs.Unsupported("[zip] '%s' entry '%s' needs zip64", s.Name(), e.Name)
		}
		e.DataOffset = locateData(s, h)
		d.Entries = append(d.Entries, e)
		pos = next
	}
	return &d, nil
}

// locateData reads the local header of an entry. An unreadable header
// yields an offset past the end of the stream, which validation reports
// as incomplete.
func locateData(s stream.Stream, h *CentralHeader) int64 {
	var lb [RAW_LOCAL_SIZE]byte
	if err := stream.ReadFull(s, lb[:], int64(h.LocalOffset)); err != nil {
		return int64(h.LocalOffset) + RAW_LOCAL_SIZE + int64(h.NameLength)
	}
	var l LocalHeader
	l.FromBuf(lb[:])
	if l.Signature != LOCAL_SIGNATURE {
		log.Warnf("[zip] '%s' bad local header signature at 0x%x", s.Name(), h.LocalOffset)
	}
	return int64(h.LocalOffset) + RAW_LOCAL_SIZE + int64(l.NameLength) + int64(l.ExtraLength)
}

// Populate adds the entries under root. Fragments point into volume with
// shift added, so a zip embedded in another package can be described in
// the outer package's coordinates.
func (d *Directory) Populate(root *vfs.Folder, volume int, shift int64, codecs codec.Set) error {
	for i := range d.Entries {
		e := &d.Entries[i]
		h := &e.Header
		parts := vfs.SplitPath(e.Name)
		if len(parts) == 0 {
			continue
		}
		if strings.HasSuffix(e.Name, "/") || strings.HasSuffix(e.Name, "\\") {
			if _, err := root.EnsureFolder(e.Name); err != nil {
				return errs.WrapFormat(err, "[zip] entry %d", i)
			}
			continue
		}
		folder := root
		if len(parts) > 1 {
			var err error
			if folder, err = root.EnsureFolder(strings.Join(parts[:len(parts)-1], vfs.Separator)); err != nil {
				return errs.WrapFormat(err, "[zip] entry %d", i)
			}
		}

		f := vfs.NewFile(parts[len(parts)-1], uint32(i), int64(h.UncompressedSize))
		f.Compression = codec.Method(h.Method)
		offset, size := e.DataOffset, int64(h.CompressedSize)
		if f.Compression == codec.LZMA {
			offset += LZMA_HEADER_SIZE
			size -= LZMA_HEADER_SIZE
		}
		if size > 0 {
			f.Fragments = []vfs.Fragment{{Volume: volume, Offset: offset + shift, Size: size}}
		}
		f.Checksum = vfs.NewCRC32Checksum(h.CRC)
		f.Extractable = h.Flags&FLAG_ENCRYPTED == 0 && codecs.Supports(f.Compression)
		f.Attributes = &ItemAttributes{
			CreateVersion:     uint32(h.CreateVersion),
			ExtractVersion:    uint32(h.ExtractVersion),
			Flags:             uint32(h.Flags),
			CompressionMethod: uint32(h.Method),
			CRC:               h.CRC,
			Disk:              uint32(h.DiskStart),
			Comment:           e.Comment,
		}
		if err := folder.AddFile(f); err != nil {
			return errs.WrapFormat(err, "[zip] entry %d", i)
		}
	}
	return nil
}
