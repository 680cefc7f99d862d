package gcf

import (
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/mogaika/hlpack/errs"
	"github.com/mogaika/hlpack/pack"
	"github.com/mogaika/hlpack/stream"
	"github.com/mogaika/hlpack/vfs"
)

type NCFFormat struct{}

func NewNCF() *NCFFormat { return &NCFFormat{} }

func (*NCFFormat) Type() pack.Type { return pack.TypeNCF }

func (*NCFFormat) Probe(s stream.Stream) bool {
	return probeVersion(s, NCF_MAJOR_VERSION)
}

// NCFRoot returns the directory holding the item files: the configured root
// or, when none is set, the directory of the package.
func NCFRoot(ctx *pack.ParseContext) string {
	if ctx.NCFRoot != "" {
		return ctx.NCFRoot
	}
	return filepath.Dir(ctx.Name)
}

func (*NCFFormat) Parse(s stream.Stream, ctx *pack.ParseContext) (*pack.Tree, error) {
	h, err := readHeader(s, NCF_MAJOR_VERSION, 1, 1)
	if err != nil {
		return nil, err
	}
	dir, err := readDirectory(s, RAW_HEADER_SIZE, true)
	if err != nil {
		return nil, err
	}
	root := NCFRoot(ctx)
	log.Debugf("[ncf] '%s': version %d.%d, cache %d, %d items, root '%s'",
		s.Name(), h.MajorVersion, h.MinorVersion, h.CacheID, dir.Header.ItemCount, root)

	tree := pack.NewTree(pack.TypeNCF, s)
	tree.Encoding = ctx.Encoding
	tree.Attributes = &NCFPackageAttributes{
		Version:           h.MinorVersion,
		CacheID:           h.CacheID,
		LastVersionPlayed: h.LastVersionPlayed,
	}
	tree.Root.Attributes = &ItemAttributes{Flags: dir.Entries[0].DirectoryFlags}

	pending := make([]*vfs.File, 0, dir.Header.FileCount)
	err = dir.build(tree.Root, ctx.Encoding, func(index uint32, e *DirectoryEntry, f *vfs.File) error {
		attrs := &ItemAttributes{Flags: e.DirectoryFlags}
		f.Attributes = attrs
		f.Extractable = !attrs.Encrypted()
		pending = append(pending, f)
		return nil
	})
	if err != nil {
		return nil, errs.WrapFormat(err, "[ncf] '%s'", s.Name())
	}

	// paths are known only once the files are attached
	for _, f := range pending {
		if f.Size == 0 {
			continue
		}
		name := filepath.Join(root, filepath.FromSlash(vfs.Path(f)))
		volume := tree.AddVolume(pack.NewLazyVolume(name, func() (stream.Stream, error) {
			if !ctx.VolumeExists(name) {
				return nil, errs.NotFound("[ncf] '%s' is missing", name)
			}
			return ctx.OpenVolume(name)
		}))
		f.Fragments = []vfs.Fragment{{Volume: volume, Offset: 0, Size: f.Size}}
	}
	return tree, nil
}
