package vpk

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mogaika/hlpack/errs"
	"github.com/mogaika/hlpack/pack"
	"github.com/mogaika/hlpack/stream"
	"github.com/mogaika/hlpack/vfs"
)

var testFiles = []struct {
	path string
	data string
}{
	{"readme", "no extension"},
	{"materials/brick.vmt", "\"LightmappedGeneric\" {}"},
	{"materials/concrete.vmt", "\"VertexLitGeneric\" {}"},
	{"sound/wind.wav", "RIFF wind"},
	{"gameinfo.txt", "\"GameInfo\" {}"},
}

func serialize(t *testing.T, version uint32) *stream.Memory {
	t.Helper()
	b := pack.NewBuilder("src")
	for _, f := range testFiles {
		_, err := b.AddFile(f.path, []byte(f.data))
		require.NoError(t, err)
	}
	if version != 0 {
		b.Tree().Attributes = &PackageAttributes{Version: version}
	}
	mem := stream.NewMemory("test_dir.vpk", nil, true)
	require.NoError(t, New().Serialize(b.Tree(), mem))
	return mem
}

func TestRoundTrip(t *testing.T) {
	for _, version := range []uint32{1, 2} {
		mem := serialize(t, version)
		assert.Equal(t, uint32(SIGNATURE), binary.LittleEndian.Uint32(mem.Bytes()))

		pkg, err := pack.OpenAs(New(), mem, nil)
		require.NoError(t, err)

		a, ok := vfs.FindAttribute(pkg.Attributes(), "Version")
		require.True(t, ok)
		assert.Equal(t, version, a.Value)
		assert.Equal(t, len(testFiles), pkg.Root().FileCount(true))

		for _, tf := range testFiles {
			f, err := pkg.Root().LookupFile(tf.path)
			require.NoError(t, err, tf.path)
			data, err := pkg.ReadFile(f)
			require.NoError(t, err)
			assert.Equal(t, tf.data, string(data))
			assert.Equal(t, vfs.ValidationOk, pkg.Validate(f), tf.path)
			assert.Equal(t, uint32(DIR_ARCHIVE_INDEX), f.Attributes.(*ItemAttributes).Archive)
		}
		require.NoError(t, pkg.Close())
	}
}

func TestProbe(t *testing.T) {
	assert.True(t, New().Probe(serialize(t, 1)))
	assert.True(t, New().Probe(stream.NewMemory("HL2_DIR.VPK", []byte{0}, false)))
	assert.False(t, New().Probe(stream.NewMemory("test.vpk", []byte("PACK"), false)))
}

func TestArchiveName(t *testing.T) {
	assert.Equal(t, "/hl2/pak01_000.vpk", ArchiveName("/hl2/pak01_dir.vpk", 0))
	assert.Equal(t, "pak01_012.vpk", ArchiveName("pak01_DIR.vpk", 12))
	assert.Equal(t, "single_001.vpk", ArchiveName("single.vpk", 1))
}

type dirEntry struct {
	ext, path, name string
	entry           Entry
	preload         string
}

// buildDir writes a directory file by hand. Entries must be grouped by
// extension and then path.
func buildDir(version uint32, entries []dirEntry, data string) []byte {
	var tree bytes.Buffer
	cstr := func(s string) {
		tree.WriteString(s)
		tree.WriteByte(0)
	}
	for i, e := range entries {
		newExt := i == 0 || entries[i-1].ext != e.ext
		newPath := newExt || entries[i-1].path != e.path
		if newPath && i != 0 {
			tree.WriteByte(0)
			if newExt {
				tree.WriteByte(0)
			}
		}
		if newExt {
			cstr(e.ext)
		}
		if newPath {
			cstr(e.path)
		}
		cstr(e.name)
		e.entry.PreloadBytes = uint16(len(e.preload))
		tree.Write(e.entry.Marshal())
		tree.WriteString(e.preload)
	}
	tree.Write([]byte{0, 0, 0})

	h := Header{Version: version, TreeSize: uint32(tree.Len())}
	out := append(h.Marshal(), tree.Bytes()...)
	return append(out, data...)
}

func TestArchives(t *testing.T) {
	readme := "HEADbody12"
	fs := afero.NewMemMapFs()
	raw := buildDir(1, []dirEntry{
		{ext: "txt", path: "maps", name: "readme", preload: "HEAD",
			entry: Entry{CRC: crc32.ChecksumIEEE([]byte(readme)), ArchiveIndex: 0, EntryOffset: 2, EntryLength: 6}},
		{ext: "txt", path: NO_NAME, name: "local",
			entry: Entry{CRC: crc32.ChecksumIEEE([]byte("inline")), ArchiveIndex: DIR_ARCHIVE_INDEX, EntryOffset: 0, EntryLength: 6}},
		{ext: "dat", path: "maps", name: "other",
			entry: Entry{CRC: 1, ArchiveIndex: 1, EntryOffset: 0, EntryLength: 4}},
	}, "inline")
	require.NoError(t, afero.WriteFile(fs, "/hl2/pak01_dir.vpk", raw, 0644))
	require.NoError(t, afero.WriteFile(fs, "/hl2/pak01_000.vpk", []byte("xxbody12yy"), 0644))

	pkg, err := pack.OpenFile(pack.NewRegistry(New()), "/hl2/pak01_dir.vpk", &pack.ParseContext{Fs: fs})
	require.NoError(t, err)
	defer pkg.Close()

	a, _ := vfs.FindAttribute(pkg.Attributes(), "Archives")
	assert.Equal(t, uint32(2), a.Value)

	f, err := pkg.Root().LookupFile("maps/readme.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(10), f.Size)
	assert.True(t, f.Fragmented())
	data, err := pkg.ReadFile(f)
	require.NoError(t, err)
	assert.Equal(t, readme, string(data))
	assert.Equal(t, vfs.ValidationOk, pkg.Validate(f))

	local, err := pkg.Root().LookupFile("local.txt")
	require.NoError(t, err)
	data, err = pkg.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "inline", string(data))

	other, err := pkg.Root().LookupFile("maps/other.dat")
	require.NoError(t, err)
	assert.Equal(t, vfs.ValidationIncomplete, pkg.Validate(other))
	_, err = pkg.ReadFile(other)
	assert.Equal(t, errs.KindIO, errs.KindOf(err))
}

func TestVersion0(t *testing.T) {
	raw := buildDir(0, []dirEntry{
		{ext: "cfg", path: "cfg", name: "autoexec",
			entry: Entry{CRC: crc32.ChecksumIEEE([]byte("exec")), ArchiveIndex: DIR_ARCHIVE_INDEX, EntryLength: 4}},
	}, "exec")

	pkg, err := pack.Open(pack.NewRegistry(New()), stream.NewMemory("old_dir.vpk", raw, false), nil)
	require.NoError(t, err)
	defer pkg.Close()

	f, err := pkg.Root().LookupFile("cfg/autoexec.cfg")
	require.NoError(t, err)
	data, err := pkg.ReadFile(f)
	require.NoError(t, err)
	assert.Equal(t, "exec", string(data))
	assert.Equal(t, vfs.ValidationOk, pkg.Validate(f))
}

func TestTruncated(t *testing.T) {
	mem := serialize(t, 1)
	mem.Truncate(mem.Size() - 2)

	pkg, err := pack.OpenAs(New(), mem, nil)
	require.NoError(t, err)
	defer pkg.Close()

	files := pkg.Root().Files()
	last := files[len(files)-1]
	for _, f := range files {
		want := vfs.ValidationOk
		if f == last {
			want = vfs.ValidationIncomplete
		}
		assert.Equal(t, want, pkg.Validate(f), vfs.Path(f))
	}
}

func TestCorruptData(t *testing.T) {
	mem := serialize(t, 1)
	raw := mem.Bytes()
	raw[len(raw)-1] ^= 0xff

	pkg, err := pack.OpenAs(New(), mem, nil)
	require.NoError(t, err)
	defer pkg.Close()

	report := pkg.ValidateItem(pkg.Root())
	assert.Equal(t, vfs.ValidationCorrupt, report.Status)
	corrupt := 0
	for _, e := range report.Entries {
		if e.Status == vfs.ValidationCorrupt {
			corrupt++
		}
	}
	assert.Equal(t, 1, corrupt)
}

func TestBadPackages(t *testing.T) {
	good := serialize(t, 1).Bytes()
	for _, tc := range []struct {
		name string
		fn   func(b []byte) []byte
	}{
		{"version", func(b []byte) []byte { b[4] = 9; return b }},
		{"tree size", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[8:], uint32(len(b)))
			return b
		}},
		{"short header", func(b []byte) []byte { return b[:8] }},
		{"terminator", func(b []byte) []byte {
			// first entry follows " \x00 \x00readme\x00"
			i := bytes.Index(b, []byte("readme\x00")) + len("readme\x00")
			b[i+16] = 0
			return b
		}},
		{"tree overrun", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[8:], 10)
			return b
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b := tc.fn(append([]byte{}, good...))
			_, err := New().Parse(stream.NewMemory("bad_dir.vpk", b, false), &pack.ParseContext{})
			require.Error(t, err)
			assert.Equal(t, errs.KindFormat, errs.KindOf(err))
		})
	}
}
