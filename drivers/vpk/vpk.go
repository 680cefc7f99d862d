// Package vpk reads and writes Valve packages (VPK versions 0, 1 and 2).
// The directory file holds a tree grouped by extension and path; file data
// lives after the tree or in numbered archive files next to it.
package vpk

import (
	"encoding/binary"
	"fmt"
	"path"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/mogaika/hlpack/errs"
	"github.com/mogaika/hlpack/pack"
	"github.com/mogaika/hlpack/readat"
	"github.com/mogaika/hlpack/stream"
	"github.com/mogaika/hlpack/vfs"
)

const (
	DIR_SUFFIX    = "_dir.vpk"
	maxNameLength = 1024
)

type Format struct{}

func New() *Format { return &Format{} }

func (*Format) Type() pack.Type { return pack.TypeVPK }

func (*Format) Probe(s stream.Stream) bool {
	magic := pack.ProbeMagic(s)
	if len(magic) >= 4 && binary.LittleEndian.Uint32(magic) == SIGNATURE {
		return true
	}
	// version 0 has no header, only the name tells
	return strings.HasSuffix(strings.ToLower(s.Name()), DIR_SUFFIX)
}

// ArchiveName returns the name of archive index next to the directory file
// name.
func ArchiveName(dirName string, index int) string {
	base := dirName
	if strings.HasSuffix(strings.ToLower(base), DIR_SUFFIX) {
		base = base[:len(base)-len(DIR_SUFFIX)]
	} else {
		base = strings.TrimSuffix(base, path.Ext(base))
	}
	return fmt.Sprintf("%s_%03d.vpk", base, index)
}

type pendingFile struct {
	folder  string
	name    string
	entry   Entry
	preload int64
}

func readHeader(s stream.Stream) (Header, error) {
	var h Header
	var b [RAW_HEADER_V2_SIZE]byte
	n := int64(len(b))
	if s.Size() < n {
		n = s.Size()
	}
	if n >= 4 {
		if err := stream.ReadFull(s, b[:n], 0); err != nil {
			return h, err
		}
	}
	if n < 4 || binary.LittleEndian.Uint32(b[:]) != SIGNATURE {
		// headerless version 0
		return h, nil
	}
	if n < RAW_HEADER_V1_SIZE {
		return h, errs.Format("[vpk] '%s' truncated header", s.Name())
	}
	h.FromBuf(b[:n])
	switch h.Version {
	case 1:
	case 2:
		if n < RAW_HEADER_V2_SIZE {
			return h, errs.Format("[vpk] '%s' truncated header", s.Name())
		}
	default:
		return h, errs.Format("[vpk] '%s' unsupported version %d", s.Name(), h.Version)
	}
	return h, nil
}

func (*Format) Parse(s stream.Stream, ctx *pack.ParseContext) (*pack.Tree, error) {
	h, err := readHeader(s)
	if err != nil {
		return nil, err
	}
	base := h.Size()
	if h.Version != 0 && !stream.InBounds(s, base, int64(h.TreeSize)) {
		return nil, errs.Format("[vpk] '%s' tree [0x%x+0x%x] outside of package", s.Name(), base, h.TreeSize)
	}
	log.Debugf("[vpk] '%s': version %d, tree size 0x%x", s.Name(), h.Version, h.TreeSize)

	pending, treeEnd, err := readTree(s, base, h)
	if err != nil {
		return nil, err
	}
	dataOffset := base + treeEnd
	if h.Version != 0 {
		dataOffset = base + int64(h.TreeSize)
	}

	tree := pack.NewTree(pack.TypeVPK, s)
	tree.Encoding = ctx.Encoding
	attrs := &PackageAttributes{Version: h.Version}
	tree.Attributes = attrs
	archives := make(map[uint16]int)

	for i, p := range pending {
		folder, err := tree.Root.EnsureFolder(p.folder)
		if err != nil {
			return nil, errs.WrapFormat(err, "[vpk] '%s'", s.Name())
		}
		e := p.entry
		f := vfs.NewFile(p.name, uint32(i), int64(e.PreloadBytes)+int64(e.EntryLength))
		if e.PreloadBytes != 0 {
			f.Fragments = append(f.Fragments, vfs.Fragment{Offset: p.preload, Size: int64(e.PreloadBytes)})
		}
		if e.EntryLength != 0 {
			fr := vfs.Fragment{Size: int64(e.EntryLength)}
			if e.ArchiveIndex == DIR_ARCHIVE_INDEX {
				fr.Offset = dataOffset + int64(e.EntryOffset)
			} else {
				volume, ok := archives[e.ArchiveIndex]
				if !ok {
					volume = tree.AddVolume(archiveVolume(ctx, int(e.ArchiveIndex)))
					archives[e.ArchiveIndex] = volume
				}
				fr.Volume = volume
				fr.Offset = int64(e.EntryOffset)
			}
			f.Fragments = append(f.Fragments, fr)
		}
		f.Checksum = vfs.NewCRC32Checksum(e.CRC)
		f.Attributes = &ItemAttributes{
			PreloadBytes: uint32(e.PreloadBytes),
			Archive:      uint32(e.ArchiveIndex),
			CRC:          e.CRC,
		}
		if err := folder.AddFile(f); err != nil {
			return nil, errs.WrapFormat(err, "[vpk] '%s'", s.Name())
		}
	}
	attrs.Archives = uint32(len(archives))
	return tree, nil
}

func archiveVolume(ctx *pack.ParseContext, index int) *pack.Volume {
	name := ArchiveName(ctx.Name, index)
	return pack.NewLazyVolume(name, func() (stream.Stream, error) {
		if !ctx.VolumeExists(name) {
			return nil, errs.NotFound("[vpk] archive '%s' is missing", name)
		}
		return ctx.OpenVolume(name)
	})
}

// readTree decodes the extension/path/name tree starting at base and
// returns the files with the tree length.
func readTree(s stream.Stream, base int64, h Header) ([]pendingFile, int64, error) {
	r := readat.NewReader(s, base)
	limit := int64(h.TreeSize)
	var pos int64
	str := func() string {
		v, n := r.CString(pos, maxNameLength)
		pos += int64(n)
		return v
	}
	check := func() error {
		if err := r.Err(); err != nil {
			return errs.WrapFormat(err, "[vpk] '%s' corrupt tree", s.Name())
		}
		if h.Version != 0 && pos > limit {
			return errs.Format("[vpk] '%s' tree overruns its size 0x%x", s.Name(), limit)
		}
		return nil
	}

	result := make([]pendingFile, 0, 256)
	for {
		ext := str()
		if err := check(); err != nil {
			return nil, 0, err
		}
		if ext == "" {
			break
		}
		for {
			folder := str()
			if err := check(); err != nil {
				return nil, 0, err
			}
			if folder == "" {
				break
			}
			if folder == NO_NAME {
				folder = ""
			}
			for {
				name := str()
				if err := check(); err != nil {
					return nil, 0, err
				}
				if name == "" {
					break
				}
				var e Entry
				if raw := r.Bytes(pos, RAW_ENTRY_SIZE); raw != nil {
					e.FromBuf(raw)
				}
				pos += RAW_ENTRY_SIZE
				if err := check(); err != nil {
					return nil, 0, err
				}
				if e.Terminator != TERMINATOR {
					return nil, 0, errs.Format("[vpk] '%s' bad entry terminator 0x%x for '%s'",
						s.Name(), e.Terminator, name)
				}
				if ext != NO_NAME {
					name += "." + ext
				}
				result = append(result, pendingFile{
					folder:  folder,
					name:    name,
					entry:   e,
					preload: base + pos,
				})
				pos += int64(e.PreloadBytes)
				if h.Version != 0 && pos > limit {
					return nil, 0, errs.Format("[vpk] '%s' preload of '%s' overruns the tree", s.Name(), name)
				}
				if !stream.InBounds(s, base+pos-int64(e.PreloadBytes), int64(e.PreloadBytes)) {
					return nil, 0, errs.Format("[vpk] '%s' preload of '%s' truncated", s.Name(), name)
				}
			}
		}
	}
	return result, pos, nil
}
