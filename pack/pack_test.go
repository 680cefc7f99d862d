package pack

import (
	"bytes"
	"context"
	"fmt"
	"hash/crc32"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mogaika/hlpack/codec"
	"github.com/mogaika/hlpack/errs"
	"github.com/mogaika/hlpack/stream"
	"github.com/mogaika/hlpack/vfs"
)

// blobFormat recognizes streams starting with magic and exposes everything
// after it as one file.
type blobFormat struct {
	typ   Type
	magic string
}

func (f blobFormat) Type() Type { return f.typ }

func (f blobFormat) Probe(s stream.Stream) bool {
	return bytes.HasPrefix(ProbeMagic(s), []byte(f.magic))
}

func (f blobFormat) Parse(s stream.Stream, ctx *ParseContext) (*Tree, error) {
	if !f.Probe(s) {
		return nil, errs.Format("[test] bad magic in '%s'", ctx.Name)
	}
	t := NewTree(f.typ, s)
	size := s.Size() - int64(len(f.magic))
	file := vfs.NewFile("blob", 0, size)
	file.Fragments = []vfs.Fragment{{Offset: int64(len(f.magic)), Size: size}}
	return t, t.Root.AddFile(file)
}

type closeTracker struct {
	*stream.Memory
	closed int
}

func (c *closeTracker) Close() error {
	c.closed++
	return nil
}

func TestDetect(t *testing.T) {
	reg := NewRegistry(blobFormat{TypeGCF, "GCF!"}, blobFormat{TypePAK, "PACK"})

	for _, tc := range []struct {
		data string
		want Type
	}{
		{"PACKdata", TypePAK},
		{"GCF!", TypeGCF},
	} {
		f, err := reg.Detect(stream.NewMemory("x", []byte(tc.data), false))
		require.NoError(t, err)
		assert.Equal(t, tc.want, f.Type())
	}

	for _, data := range []string{"", "PAC", "ZIPPED"} {
		s := &closeTracker{Memory: stream.NewMemory("unknown", []byte(data), false)}
		for _, f := range reg.Formats() {
			assert.False(t, f.Probe(s))
		}
		_, err := Open(reg, s, nil)
		require.Error(t, err)
		assert.Equal(t, errs.KindUnknownFormat, errs.KindOf(err))
		assert.Equal(t, 1, s.closed, "stream closed on failure")
	}

	assert.Equal(t, TypePAK, reg.ByType(TypePAK).Type())
	assert.Nil(t, reg.ByType(TypeVBSP))
}

func TestOpen(t *testing.T) {
	reg := NewRegistry(blobFormat{TypePAK, "PACK"})
	s := &closeTracker{Memory: stream.NewMemory("mem.pak", []byte("PACKhello"), false)}

	pkg, err := Open(reg, s, nil)
	require.NoError(t, err)
	assert.Equal(t, "mem.pak", pkg.Name())
	assert.Equal(t, TypePAK, pkg.Type())

	n, err := pkg.Lookup("BLOB")
	require.NoError(t, err)
	data, err := pkg.ReadFile(n.(*vfs.File))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, pkg.Close())
	require.NoError(t, pkg.Close())
	assert.True(t, pkg.Closed())
	assert.Equal(t, 1, s.closed)

	_, err = pkg.ReadFile(n.(*vfs.File))
	assert.Equal(t, errs.KindIO, errs.KindOf(err))
	assert.Equal(t, vfs.ValidationIncomplete, pkg.Validate(n.(*vfs.File)))
	assert.Equal(t, vfs.ValidationUnknown, n.(*vfs.File).Validation(), "closed packages do not cache")
	assert.Error(t, pkg.Exclusive(func(*Tree) error { return nil }))
}

func TestOpenFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/games/a.pak", []byte("PACKabc"), 0644))
	reg := NewRegistry(blobFormat{TypePAK, "PACK"})

	pkg, err := OpenFile(reg, "/games/a.pak", &ParseContext{Fs: fs})
	require.NoError(t, err)
	defer pkg.Close()
	assert.Equal(t, "/games/a.pak", pkg.Name())
	assert.Equal(t, int64(3), pkg.Root().Size(true))

	_, err = OpenFile(reg, "/games/missing.pak", &ParseContext{Fs: fs})
	assert.Equal(t, errs.KindIO, errs.KindOf(err))
}

func TestTypeByName(t *testing.T) {
	for _, tc := range []struct {
		name string
		want Type
	}{
		{"gcf", TypeGCF},
		{"VPK", TypeVPK},
		{".wad", TypeWAD},
		{"bsp", TypeVBSP},
		{"vbsp", TypeVBSP},
		{"rar", TypeUnknown},
	} {
		assert.Equal(t, tc.want, TypeByName(tc.name), tc.name)
	}
	assert.Equal(t, "Unknown", TypeUnknown.String())
	assert.Equal(t, "Half-Life Game Cache File", TypeGCF.Description())
}

func newBuilt(t *testing.T, files ...string) (*Package, *Builder) {
	t.Helper()
	b := NewBuilder("built")
	for i, p := range files {
		_, err := b.AddFile(p, []byte(fmt.Sprintf("content of file %d: %s", i, p)))
		require.NoError(t, err)
	}
	return NewPackage(blobFormat{TypePAK, "PACK"}, b.Tree(), "built"), b
}

func TestValidate(t *testing.T) {
	pkg, _ := newBuilt(t, "a.txt", "dir/b.txt", "dir/c.txt")
	files := pkg.Root().Files()

	for _, f := range files {
		assert.Equal(t, vfs.ValidationOk, pkg.Validate(f), vfs.Path(f))
	}

	b := files[1]
	b.Checksum.CRC ^= 1
	assert.Equal(t, vfs.ValidationOk, pkg.Validate(b), "cached status")
	assert.Equal(t, vfs.ValidationCorrupt, pkg.Revalidate(b))
	assert.Equal(t, vfs.ValidationCorrupt, pkg.Validate(b))

	c := files[2]
	c.Checksum = nil
	assert.Equal(t, vfs.ValidationUnavailable, pkg.Revalidate(c))

	dir, err := pkg.Lookup("dir")
	require.NoError(t, err)
	report := pkg.ValidateItem(dir)
	assert.Equal(t, vfs.ValidationCorrupt, report.Status)
	require.Len(t, report.Entries, 2)
	assert.Equal(t, "dir/b.txt", report.Entries[0].Path)
	assert.Equal(t, vfs.ValidationUnavailable, report.Entries[1].Status)

	// validation never touches the data
	data, err := pkg.ReadFile(b)
	require.NoError(t, err)
	assert.Equal(t, "content of file 1: dir/b.txt", string(data))
}

func TestValidateEmptyFolder(t *testing.T) {
	pkg, b := newBuilt(t, "a.txt")
	empty, err := b.AddFolder("empty")
	require.NoError(t, err)
	report := pkg.ValidateItem(empty)
	assert.Empty(t, report.Entries)
	assert.Equal(t, vfs.ValidationOk, report.Status)
}

func TestValidateTruncated(t *testing.T) {
	pkg, _ := newBuilt(t, "a.txt", "b.txt", "c.txt")
	files := pkg.Root().Files()
	last := files[2]
	last.Fragments[0].Size += 100

	assert.Equal(t, vfs.ValidationOk, pkg.Validate(files[0]))
	assert.Equal(t, vfs.ValidationOk, pkg.Validate(files[1]))
	assert.Equal(t, vfs.ValidationIncomplete, pkg.Validate(last))

	short := files[1]
	short.Fragments[0].Size--
	assert.Equal(t, vfs.ValidationIncomplete, pkg.Revalidate(short))

	_, err := pkg.ReadFile(last)
	assert.Equal(t, errs.KindIO, errs.KindOf(err))
}

func TestValidateCompressed(t *testing.T) {
	pkg, b := newBuilt(t)
	plain := bytes.Repeat([]byte("abc"), 100)
	f, err := b.AddFile("x.bin", plain)
	require.NoError(t, err)
	f.Compression = codec.Method(200)
	pkg.Tree().Codecs = codec.Set{codec.Method(200): codec.DecompressorFunc(func(src []byte, n int64) ([]byte, error) {
		if int64(len(src)) != n {
			return nil, errs.Format("[test] length %d, expected %d", len(src), n)
		}
		return src, nil
	})}
	f.Size = int64(len(plain))
	assert.Equal(t, vfs.ValidationOk, pkg.Validate(f))

	f.Size++
	assert.Equal(t, vfs.ValidationCorrupt, pkg.Revalidate(f), "decode failure")

	f.Size--
	pkg.Tree().Codecs = codec.Set{}
	assert.Equal(t, vfs.ValidationCorrupt, pkg.Revalidate(f), "unknown method")
}

func TestValidateParallel(t *testing.T) {
	paths := make([]string, 40)
	for i := range paths {
		paths[i] = fmt.Sprintf("d%d/f%02d.txt", i%3, i)
	}
	pkg, _ := newBuilt(t, paths...)
	files := pkg.Root().Files()
	for i, f := range files {
		if i%7 == 0 {
			f.Checksum = vfs.NewCRC32Checksum(crc32.ChecksumIEEE([]byte("wrong")))
		}
	}

	results, err := pkg.ValidateParallel(context.Background(), files, 5)
	require.NoError(t, err)
	require.Len(t, results, len(files))
	for i, f := range files {
		f.ResetValidation()
		assert.Equal(t, pkg.Validate(f), results[i], vfs.Path(f))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, f := range files {
		f.ResetValidation()
	}
	_, err = pkg.ValidateParallel(ctx, files, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLazyVolume(t *testing.T) {
	pkg, b := newBuilt(t, "a.txt")
	opened := 0
	data := stream.NewMemory("pak_001", []byte("0123456789"), false)
	index := b.Tree().AddVolume(NewLazyVolume("pak_001", func() (stream.Stream, error) {
		opened++
		return data, nil
	}))
	missing := b.Tree().AddVolume(NewLazyVolume("pak_002", func() (stream.Stream, error) {
		opened++
		return nil, errs.NotFound("[test] no pak_002")
	}))
	assert.Equal(t, 0, opened)

	f := vfs.NewFile("split.bin", 10, 6)
	f.Fragments = []vfs.Fragment{{Volume: index, Offset: 2, Size: 3}, {Volume: index, Offset: 7, Size: 3}}
	require.NoError(t, pkg.Root().AddFile(f))
	assert.True(t, f.Fragmented())

	got, err := pkg.ReadFile(f)
	require.NoError(t, err)
	assert.Equal(t, "234789", string(got))
	assert.Equal(t, vfs.ValidationUnavailable, pkg.Validate(f))

	var out bytes.Buffer
	n, err := pkg.CopyTo(f, &out, make([]byte, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
	assert.Equal(t, "234789", out.String())

	g := vfs.NewFile("gone.bin", 11, 4)
	g.Fragments = []vfs.Fragment{{Volume: missing, Offset: 0, Size: 4}}
	require.NoError(t, pkg.Root().AddFile(g))
	assert.Equal(t, vfs.ValidationIncomplete, pkg.Validate(g))
	_, err = pkg.ReadFile(g)
	assert.Error(t, err)
	assert.Equal(t, 2, opened, "each volume opened once")

	report := pkg.Fragmentation()
	assert.Equal(t, 3, report.Files)
	assert.Equal(t, 1, report.FragmentedFiles)
	assert.InDelta(t, 33.3, report.Percent(), 0.1)

	require.NoError(t, pkg.Close())
	_, err = pkg.Volumes()[index].Stream()
	assert.Error(t, err)
}

func TestBuilderAddDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/src/liblist.gam", []byte("game"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/src/maps/c1a0.bsp", []byte("bsp data"), 0644))
	require.NoError(t, fs.MkdirAll("/src/empty", 0755))

	b := NewBuilder("dir")
	require.NoError(t, b.AddDir(fs, "/src"))
	root := b.Tree().Root
	assert.Equal(t, 2, root.FileCount(true))
	assert.Equal(t, 2, root.FolderCount(true))

	pkg := NewPackage(blobFormat{TypePAK, "PACK"}, b.Tree(), "dir")
	n, err := pkg.Lookup("maps/c1a0.bsp")
	require.NoError(t, err)
	data, err := pkg.ReadFile(n.(*vfs.File))
	require.NoError(t, err)
	assert.Equal(t, "bsp data", string(data))
	assert.Equal(t, vfs.ValidationOk, pkg.Validate(n.(*vfs.File)))

	_, err = b.AddFile("", nil)
	assert.Error(t, err)
	_, err = b.AddFile("liblist.gam/x", nil)
	assert.Error(t, err)

	assert.Error(t, NewBuilder("x").AddDir(fs, "/nope"))
}

func TestSerializer(t *testing.T) {
	pkg, _ := newBuilt(t, "a.txt")
	_, err := pkg.Serializer()
	assert.Equal(t, errs.KindUnsupported, errs.KindOf(err))
}
