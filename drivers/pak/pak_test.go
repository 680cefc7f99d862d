package pak

import (
	"encoding/binary"
	"testing"

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
	{"liblist.gam", "game \"Half-Life\""},
	{"maps/c0a0.bsp", "map data"},
	{"sound/ambience/wind.wav", "RIFF...."},
	{"empty.txt", ""},
}

func serialize(t *testing.T) *stream.Memory {
	t.Helper()
	b := pack.NewBuilder("src")
	for _, f := range testFiles {
		_, err := b.AddFile(f.path, []byte(f.data))
		require.NoError(t, err)
	}
	mem := stream.NewMemory("pak0.pak", nil, true)
	require.NoError(t, New().Serialize(b.Tree(), mem))
	return mem
}

func TestRoundTrip(t *testing.T) {
	mem := serialize(t)
	assert.Equal(t, []byte(MAGIC), mem.Bytes()[:4])
	assert.True(t, New().Probe(mem))

	pkg, err := pack.OpenAs(New(), mem, nil)
	require.NoError(t, err)
	defer pkg.Close()

	assert.Equal(t, pack.TypePAK, pkg.Type())
	assert.Equal(t, len(testFiles), pkg.Root().FileCount(true))
	for _, tf := range testFiles {
		f, err := pkg.Root().LookupFile(tf.path)
		require.NoError(t, err, tf.path)
		data, err := pkg.ReadFile(f)
		require.NoError(t, err)
		assert.Equal(t, tf.data, string(data))
		assert.False(t, f.Fragmented())
		assert.Equal(t, vfs.ValidationUnavailable, pkg.Validate(f), "pak has no checksums")
	}
}

func TestDirectoryLayout(t *testing.T) {
	raw := serialize(t).Bytes()
	dirOffset := binary.LittleEndian.Uint32(raw[4:])
	dirLength := binary.LittleEndian.Uint32(raw[8:])
	assert.Equal(t, uint32(len(testFiles)*RAW_ENTRY_SIZE), dirLength)
	assert.Equal(t, len(raw), int(dirOffset+dirLength))

	var e Entry
	e.FromBuf(pack.ParseContext{}.Encoding, raw[dirOffset+RAW_ENTRY_SIZE:])
	assert.Equal(t, "maps/c0a0.bsp", e.Name)
	assert.Equal(t, uint32(len(testFiles[1].data)), e.Length)
	assert.Equal(t, testFiles[1].data, string(raw[e.Offset:e.Offset+e.Length]))
}

func TestBadPackages(t *testing.T) {
	good := serialize(t).Bytes()
	corrupt := func(fn func(b []byte) []byte) []byte {
		b := append([]byte{}, good...)
		return fn(b)
	}

	for _, tc := range []struct {
		name string
		data []byte
	}{
		{"short", []byte("PACK")},
		{"magic", corrupt(func(b []byte) []byte { copy(b, "KCAP"); return b })},
		{"dir outside", corrupt(func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[4:], uint32(len(b)))
			return b
		})},
		{"dir length", corrupt(func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[8:], 65)
			return b
		})},
		{"duplicate", corrupt(func(b []byte) []byte {
			dir := binary.LittleEndian.Uint32(b[4:])
			copy(b[dir+RAW_ENTRY_SIZE:], b[dir:dir+NAME_SIZE])
			return b
		})},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New().Parse(stream.NewMemory("bad.pak", tc.data, false), &pack.ParseContext{})
			require.Error(t, err)
			assert.Equal(t, errs.KindFormat, errs.KindOf(err))
		})
	}
	assert.False(t, New().Probe(stream.NewMemory("x", []byte("WAD3"), false)))
}

func TestEntryOutsideStream(t *testing.T) {
	raw := serialize(t).Bytes()
	dir := binary.LittleEndian.Uint32(raw[4:])
	binary.LittleEndian.PutUint32(raw[dir+NAME_SIZE:], uint32(len(raw)))

	pkg, err := pack.OpenAs(New(), stream.NewMemory("broken.pak", raw, false), nil)
	require.NoError(t, err)
	defer pkg.Close()

	f, err := pkg.Root().LookupFile("liblist.gam")
	require.NoError(t, err)
	assert.Equal(t, vfs.ValidationIncomplete, pkg.Validate(f))
	other, err := pkg.Root().LookupFile("maps/c0a0.bsp")
	require.NoError(t, err)
	assert.Equal(t, vfs.ValidationUnavailable, pkg.Validate(other))
}

func TestLongName(t *testing.T) {
	b := pack.NewBuilder("src")
	long := ""
	for len(long) < NAME_SIZE {
		long += "abcdefgh/"
	}
	_, err := b.AddFile(long+"x", []byte("x"))
	require.NoError(t, err)
	err = New().Serialize(b.Tree(), stream.NewMemory("long.pak", nil, true))
	assert.Equal(t, errs.KindFormat, errs.KindOf(err))
}

func TestEscapingNames(t *testing.T) {
	for _, tc := range []struct {
		name string
		ok   bool
	}{
		{"../../escaped.txt", false},
		{"maps/../../escaped.txt", false},
		{"..", false},
		{`..\escaped.txt`, false},
		{"./liblist.gam", true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			raw := serialize(t).Bytes()
			dir := binary.LittleEndian.Uint32(raw[4:])
			name := make([]byte, NAME_SIZE)
			copy(name, tc.name)
			copy(raw[dir:], name)

			pkg, err := pack.OpenAs(New(), stream.NewMemory("evil.pak", raw, false), nil)
			if !tc.ok {
				require.Error(t, err)
				assert.Equal(t, errs.KindFormat, errs.KindOf(err))
				return
			}
			require.NoError(t, err)
			defer pkg.Close()
			_, err = pkg.Root().LookupFile("liblist.gam")
			assert.NoError(t, err)
		})
	}
}
