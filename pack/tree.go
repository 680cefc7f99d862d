package pack

import (
	"io"

	"github.com/mogaika/hlpack/codec"
	"github.com/mogaika/hlpack/config"
	"github.com/mogaika/hlpack/errs"
	"github.com/mogaika/hlpack/stream"
	"github.com/mogaika/hlpack/vfs"
)

// Tree is the parsed form of a package: the directory tree, the volumes its
// fragments point into and the package level attributes.
type Tree struct {
	Type       Type
	Root       *vfs.Folder
	Volumes    []*Volume
	Attributes vfs.Attributes
	Codecs     codec.Set
	// Encoding decodes and encodes fixed-width names.
	Encoding config.Encoding
}

// NewTree creates a tree with s as its primary volume.
func NewTree(t Type, s stream.Stream) *Tree {
	tree := &Tree{
		Type:     t,
		Root:     vfs.NewRoot(),
		Codecs:   codec.Default(),
		Encoding: config.DefaultEncoding(),
	}
	if s != nil {
		tree.Volumes = append(tree.Volumes, NewVolume(s))
	}
	return tree
}

// AddVolume appends a volume and returns its index.
func (t *Tree) AddVolume(v *Volume) int {
	t.Volumes = append(t.Volumes, v)
	return len(t.Volumes) - 1
}

func (t *Tree) Primary() stream.Stream {
	if len(t.Volumes) == 0 {
		return nil
	}
	s, _ := t.Volumes[0].Stream()
	return s
}

func (t *Tree) volume(index int) (stream.Stream, error) {
	if index < 0 || index >= len(t.Volumes) {
		return nil, errs.NotFound("[pack] volume %d out of range", index)
	}
	return t.Volumes[index].Stream()
}

// Complete reports whether every fragment of f lies inside an available
// volume and, for stored files, whether the fragments cover the whole file.
func (t *Tree) Complete(f *vfs.File) bool {
	if !f.Compressed() && f.SizeOnDisk() < f.Size {
		return false
	}
	for _, fr := range f.Fragments {
		s, err := t.volume(fr.Volume)
		if err != nil || !stream.InBounds(s, fr.Offset, fr.Size) {
			return false
		}
	}
	return true
}

// WalkStored calls fn with consecutive pieces of the stored bytes of f in
// fragment order. buf bounds the size of each piece.
func (t *Tree) WalkStored(f *vfs.File, buf []byte, fn func([]byte) error) error {
	if len(buf) == 0 {
		buf = make([]byte, stream.DefaultCopyBufferSize)
	}
	for _, fr := range f.Fragments {
		s, err := t.volume(fr.Volume)
		if err != nil {
			return errs.WrapIO(err, "[pack] '%s'", vfs.Path(f))
		}
		for done := int64(0); done < fr.Size; {
			n := int64(len(buf))
			if rest := fr.Size - done; rest < n {
				n = rest
			}
			if err := stream.ReadFull(s, buf[:n], fr.Offset+done); err != nil {
				return err
			}
			if err := fn(buf[:n]); err != nil {
				return err
			}
			done += n
		}
	}
	return nil
}

// ReadStored returns the stored (possibly compressed) bytes of f.
func (t *Tree) ReadStored(f *vfs.File) ([]byte, error) {
	out := make([]byte, 0, f.SizeOnDisk())
	err := t.WalkStored(f, nil, func(b []byte) error {
		out = append(out, b...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReadFile returns the decoded contents of f.
func (t *Tree) ReadFile(f *vfs.File) ([]byte, error) {
	raw, err := t.ReadStored(f)
	if err != nil {
		return nil, err
	}
	return t.decode(f, raw)
}

func (t *Tree) decode(f *vfs.File, raw []byte) ([]byte, error) {
	if !f.Compressed() {
		if int64(len(raw)) != f.Size {
			return nil, errs.Format("[pack] '%s' stored size %d, expected %d", vfs.Path(f), len(raw), f.Size)
		}
		return raw, nil
	}
	codecs := t.Codecs
	if codecs == nil {
		codecs = codec.Default()
	}
	out, err := codecs.Decompress(f.Compression, raw, f.Size)
	if err != nil {
		return nil, errs.WrapFormat(err, "[pack] '%s'", vfs.Path(f))
	}
	return out, nil
}

// CopyTo writes the decoded contents of f to w and returns the number of
// bytes written. Uncompressed files are streamed through buf.
func (t *Tree) CopyTo(f *vfs.File, w io.Writer, buf []byte) (int64, error) {
	if f.Compressed() {
		data, err := t.ReadFile(f)
		if err != nil {
			return 0, err
		}
		n, err := w.Write(data)
		return int64(n), err
	}
	var written int64
	err := t.WalkStored(f, buf, func(b []byte) error {
		n, err := w.Write(b)
		written += int64(n)
		return err
	})
	return written, err
}

func (t *Tree) Close() error {
	var result error
	for _, v := range t.Volumes {
		if err := v.Close(); err != nil && result == nil {
			result = err
		}
	}
	return result
}
