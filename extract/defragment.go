package extract

import (
	"bytes"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/mogaika/hlpack/errs"
	"github.com/mogaika/hlpack/pack"
	"github.com/mogaika/hlpack/stream"
	"github.com/mogaika/hlpack/vfs"
)

type DefragmentOptions struct {
	// Force rewrites packages that report no fragmented files.
	Force bool
	// Verify re-reads every rewritten file and compares it to the source.
	Verify bool
	// Progress is called after each rewritten file is checked.
	Progress func(path string, done, total int)
}

// Defragment serializes pkg into target and parses the result. The source
// is locked exclusively while it is written. target belongs to the returned
// package, and is closed on failure.
func Defragment(pkg *pack.Package, target stream.Stream, opts DefragmentOptions) (*pack.Package, error) {
	ser, err := pkg.Serializer()
	if err != nil {
		target.Close()
		return nil, err
	}

	var result *pack.Package
	err = pkg.Exclusive(func(t *pack.Tree) error {
		if err := ser.Serialize(t, target); err != nil {
			target.Close()
			return err
		}
		out, err := pack.OpenAs(pkg.Format(), target, &pack.ParseContext{
			Name:     target.Name(),
			Encoding: t.Encoding,
		})
		if err != nil {
			return errors.Wrapf(err, "[extract] Rewritten '%s' does not parse", target.Name())
		}
		if err := sameContents(t, out, opts); err != nil {
			out.Close()
			return err
		}
		result = out
		return nil
	})
	if err != nil {
		return nil, err
	}

	frag := result.Fragmentation()
	log.Infof("[extract] '%s' rewritten: %d files, %d fragmented", pkg.Name(), frag.Files, frag.FragmentedFiles)
	return result, nil
}

// sameContents checks that every (path, size, checksum) of src survives in
// dst. With opts.Verify set the decoded bytes are compared too.
func sameContents(src *pack.Tree, dst *pack.Package, opts DefragmentOptions) error {
	files := src.Root.Files()
	if n := dst.Root().FileCount(true); n != len(files) {
		return errs.Format("[extract] rewritten package has %d files, expected %d", n, len(files))
	}
	for i, f := range files {
		path := vfs.Path(f)
		g, err := dst.Root().LookupFile(path)
		if err != nil {
			return errors.Wrapf(err, "[extract] rewritten package lost '%s'", path)
		}
		if g.Size != f.Size {
			return errs.Format("[extract] '%s' size %d, expected %d", path, g.Size, f.Size)
		}
		if !sameChecksum(f.Checksum, g.Checksum) {
			return errs.Format("[extract] '%s' checksum changed", path)
		}
		if opts.Verify {
			if err := sameData(src, f, dst, g); err != nil {
				return err
			}
		}
		if opts.Progress != nil {
			opts.Progress(path, i+1, len(files))
		}
	}
	return nil
}

func sameChecksum(a, b *vfs.Checksum) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind != b.Kind {
		return false
	}
	if a.Kind == vfs.ChecksumCRC32 {
		return a.CRC == b.CRC
	}
	if a.ChunkSize != b.ChunkSize || len(a.Chunks) != len(b.Chunks) {
		return false
	}
	for i := range a.Chunks {
		if a.Chunks[i] != b.Chunks[i] {
			return false
		}
	}
	return true
}

func sameData(src *pack.Tree, f *vfs.File, dst *pack.Package, g *vfs.File) error {
	want, err := src.ReadFile(f)
	if err != nil {
		// unreadable source files are carried over as they are
		return nil
	}
	got, err := dst.ReadFile(g)
	if err != nil {
		return err
	}
	if !bytes.Equal(want, got) {
		return errs.Format("[extract] '%s' contents changed", vfs.Path(f))
	}
	return nil
}

// DefragmentFile rewrites the package at path in place through a temporary
// file. It reports whether the package was rewritten.
func DefragmentFile(reg *pack.Registry, fs afero.Fs, path string, opts DefragmentOptions) (bool, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	pkg, err := pack.OpenFile(reg, path, &pack.ParseContext{Fs: fs, Mode: stream.ModeRead | stream.ModeNoMapping})
	if err != nil {
		return false, err
	}
	defer pkg.Close()

	if _, err := pkg.Serializer(); err != nil {
		return false, err
	}
	if frag := pkg.Fragmentation(); frag.FragmentedFiles == 0 && !opts.Force {
		log.Infof("[extract] '%s' is not fragmented", path)
		return false, nil
	}

	tmp := path + ".defrag"
	target, err := stream.OpenFile(fs, tmp, stream.ModeWrite|stream.ModeCreate)
	if err != nil {
		return false, err
	}
	out, err := Defragment(pkg, target, opts)
	if err != nil {
		fs.Remove(tmp)
		return false, err
	}
	if err := out.Close(); err != nil {
		fs.Remove(tmp)
		return false, err
	}
	if err := pkg.Close(); err != nil {
		fs.Remove(tmp)
		return false, err
	}
	if err := fs.Rename(tmp, path); err != nil {
		return false, errs.WrapIO(err, "[extract] Cannot replace '%s'", path)
	}
	return true, nil
}
