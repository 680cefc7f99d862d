package extract

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/Pallinder/go-randomdata"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mogaika/hlpack/drivers"
	"github.com/mogaika/hlpack/drivers/gcf"
	"github.com/mogaika/hlpack/drivers/vpk"
	"github.com/mogaika/hlpack/errs"
	"github.com/mogaika/hlpack/pack"
	"github.com/mogaika/hlpack/stream"
	"github.com/mogaika/hlpack/vfs"
)

const testBlockSize = 0x200

// fragmentedCache writes an interleaved cache. edit may change the source
// tree before it is written.
func fragmentedCache(t *testing.T, edit ...func(*pack.Tree)) *stream.Memory {
	t.Helper()
	b := pack.NewBuilder("src")
	for i, p := range []string{"maps/c1a0.bsp", "maps/c1a1.bsp", "sound/" + randomdata.SillyName() + ".wav", "readme.txt"} {
		content := bytes.Repeat([]byte(randomdata.Alphanumeric(13)), 100+i*40)
		_, err := b.AddFile(p, content)
		require.NoError(t, err)
	}
	for _, fn := range edit {
		fn(b.Tree())
	}
	mem := stream.NewMemory("fragmented.gcf", nil, true)
	require.NoError(t, gcf.New().SerializeWith(b.Tree(), mem, gcf.WriteOptions{BlockSize: testBlockSize, Interleave: true}))
	return mem
}

type snapshot map[string][]byte

func contents(t *testing.T, pkg *pack.Package) snapshot {
	t.Helper()
	result := make(snapshot)
	for _, f := range pkg.Root().Files() {
		data, err := pkg.ReadFile(f)
		require.NoError(t, err)
		result[vfs.Path(f)] = data
	}
	return result
}

func TestDefragmentGCF(t *testing.T) {
	pkg, err := pack.Open(drivers.NewRegistry(), fragmentedCache(t), nil)
	require.NoError(t, err)
	defer pkg.Close()
	require.Equal(t, pack.TypeGCF, pkg.Type())

	before := pkg.Fragmentation()
	require.NotZero(t, before.FragmentedFiles)
	want := contents(t, pkg)

	out, err := Defragment(pkg, stream.NewMemory("defrag.gcf", nil, true), DefragmentOptions{Verify: true})
	require.NoError(t, err)
	defer out.Close()

	after := out.Fragmentation()
	assert.Equal(t, before.Files, after.Files)
	assert.Zero(t, after.FragmentedFiles)
	assert.Equal(t, want, contents(t, out))

	for _, f := range out.Root().Files() {
		assert.Equal(t, vfs.ValidationOk, out.Validate(f), vfs.Path(f))
	}
}

func TestDefragmentUnsupported(t *testing.T) {
	pkg := openZip(t, zipEntry{name: "a.txt", data: []byte("a")})
	_, err := Defragment(pkg, stream.NewMemory("out.zip", nil, true), DefragmentOptions{})
	require.Error(t, err)
	assert.Equal(t, errs.KindUnsupported, errs.KindOf(err))
}

func TestDefragmentFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/games/half-life.gcf", fragmentedCache(t).Bytes(), 0644))
	reg := drivers.NewRegistry()

	done, err := DefragmentFile(reg, fs, "/games/half-life.gcf", DefragmentOptions{})
	require.NoError(t, err)
	assert.True(t, done)

	exists, _ := afero.Exists(fs, "/games/half-life.gcf.defrag")
	assert.False(t, exists)

	pkg, err := pack.OpenFile(reg, "/games/half-life.gcf", &pack.ParseContext{Fs: fs})
	require.NoError(t, err)
	assert.Zero(t, pkg.Fragmentation().FragmentedFiles)
	require.NoError(t, pkg.Close())

	// nothing left to do without Force
	done, err = DefragmentFile(reg, fs, "/games/half-life.gcf", DefragmentOptions{})
	require.NoError(t, err)
	assert.False(t, done)

	done, err = DefragmentFile(reg, fs, "/games/half-life.gcf", DefragmentOptions{Force: true})
	require.NoError(t, err)
	assert.True(t, done)
}

// checksums maps every file path of pkg to its checksum, "none" for files
// without one.
func checksums(t *testing.T, pkg *pack.Package) map[string]string {
	t.Helper()
	result := make(map[string]string)
	for _, f := range pkg.Root().Files() {
		c := f.Checksum
		if c == nil {
			result[vfs.Path(f)] = "none"
			continue
		}
		result[vfs.Path(f)] = fmt.Sprintf("%d/%08x/%d/%v", c.Kind, c.CRC, c.ChunkSize, c.Chunks)
	}
	return result
}

func TestDefragmentKeepsChecksums(t *testing.T) {
	for _, tc := range []struct {
		name   string
		source func(t *testing.T) stream.Stream
		target string
	}{
		{"gcf", func(t *testing.T) stream.Stream {
			return fragmentedCache(t, func(tree *pack.Tree) {
				f, err := tree.Root.LookupFile("readme.txt")
				require.NoError(t, err)
				f.Checksum = nil
			})
		}, "defrag.gcf"},
		{"vpk", func(t *testing.T) stream.Stream {
			b := pack.NewBuilder("src")
			for _, p := range []string{"a.txt", "dir/b.txt", "materials/" + randomdata.SillyName() + ".vmt"} {
				_, err := b.AddFile(p, []byte(randomdata.Paragraph()))
				require.NoError(t, err)
			}
			mem := stream.NewMemory("source_dir.vpk", nil, true)
			require.NoError(t, vpk.New().Serialize(b.Tree(), mem))
			return mem
		}, "defrag_dir.vpk"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			pkg, err := pack.Open(drivers.NewRegistry(), tc.source(t), nil)
			require.NoError(t, err)
			defer pkg.Close()
			want := checksums(t, pkg)

			var progress []int
			out, err := Defragment(pkg, stream.NewMemory(tc.target, nil, true), DefragmentOptions{
				Verify: true,
				Progress: func(path string, done, total int) {
					assert.Equal(t, len(want), total)
					assert.Contains(t, want, path)
					progress = append(progress, done)
				},
			})
			require.NoError(t, err)
			defer out.Close()

			assert.Equal(t, want, checksums(t, out))
			assert.Len(t, progress, len(want))
			assert.Equal(t, len(want), progress[len(progress)-1])
		})
	}
}

func TestDefragmentWithoutChecksum(t *testing.T) {
	mem := fragmentedCache(t, func(tree *pack.Tree) {
		f, err := tree.Root.LookupFile("readme.txt")
		require.NoError(t, err)
		f.Checksum = nil
	})
	pkg, err := pack.Open(drivers.NewRegistry(), mem, nil)
	require.NoError(t, err)
	defer pkg.Close()

	out, err := Defragment(pkg, stream.NewMemory("defrag.gcf", nil, true), DefragmentOptions{Verify: true})
	require.NoError(t, err)
	defer out.Close()

	f, err := out.Root().LookupFile("readme.txt")
	require.NoError(t, err)
	assert.Nil(t, f.Checksum)
	assert.Equal(t, vfs.ValidationUnavailable, out.Validate(f))

	g, err := out.Root().LookupFile("maps/c1a0.bsp")
	require.NoError(t, err)
	require.NotNil(t, g.Checksum)
	assert.Equal(t, vfs.ValidationOk, out.Validate(g))
}

func TestDefragmentIncomplete(t *testing.T) {
	const missing = 3000
	var stored int64
	fs := afero.NewMemMapFs()
	mem := fragmentedCache(t, func(tree *pack.Tree) {
		f, err := tree.Root.LookupFile("maps/c1a1.bsp")
		require.NoError(t, err)
		stored = f.Size
		f.Size += missing
	})
	require.NoError(t, afero.WriteFile(fs, "/games/partial.gcf", mem.Bytes(), 0644))
	reg := drivers.NewRegistry()

	var paths []string
	done, err := DefragmentFile(reg, fs, "/games/partial.gcf", DefragmentOptions{
		Verify:   true,
		Progress: func(path string, _, _ int) { paths = append(paths, path) },
	})
	require.NoError(t, err)
	assert.True(t, done)
	assert.Contains(t, paths, "maps/c1a1.bsp")

	pkg, err := pack.OpenFile(reg, "/games/partial.gcf", &pack.ParseContext{Fs: fs})
	require.NoError(t, err)
	defer pkg.Close()
	assert.Zero(t, pkg.Fragmentation().FragmentedFiles)

	f, err := pkg.Root().LookupFile("maps/c1a1.bsp")
	require.NoError(t, err)
	assert.Equal(t, stored+missing, f.Size)
	assert.Equal(t, stored, f.SizeOnDisk())
	assert.False(t, f.Extractable)
	assert.Equal(t, vfs.ValidationIncomplete, pkg.Validate(f))
}
