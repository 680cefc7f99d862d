package zip

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/klauspost/compress/flate"
	kzip "github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz/lzma"

	"github.com/mogaika/hlpack/codec"
	"github.com/mogaika/hlpack/errs"
	"github.com/mogaika/hlpack/pack"
	"github.com/mogaika/hlpack/stream"
	"github.com/mogaika/hlpack/vfs"
)

type rawEntry struct {
	name   string
	method uint16
	data   []byte
	packed []byte
	flags  uint16
}

func deflate(t *testing.T, data []byte) []byte {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func zstdPack(t *testing.T, data []byte) []byte {
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer enc.Close()
	return enc.EncodeAll(data, nil)
}

// lzmaPack produces a zip method 14 payload: version, properties size,
// properties and the raw stream.
func lzmaPack(t *testing.T, data []byte) []byte {
	var buf bytes.Buffer
	w, err := lzma.WriterConfig{SizeInHeader: true, Size: int64(len(data))}.NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	b := buf.Bytes()
	out := []byte{9, 20, 5, 0}
	out = append(out, b[:5]...)
	return append(out, b[13:]...)
}

func buildZip(t *testing.T, comment string, entries ...rawEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := kzip.NewWriter(&buf)
	for _, e := range entries {
		packed := e.packed
		if packed == nil {
			packed = e.data
		}
		raw, err := w.CreateRaw(&kzip.FileHeader{
			Name:               e.name,
			Method:             e.method,
			Flags:              e.flags,
			CRC32:              crc32.ChecksumIEEE(e.data),
			CompressedSize64:   uint64(len(packed)),
			UncompressedSize64: uint64(len(e.data)),
		})
		require.NoError(t, err)
		_, err = raw.Write(packed)
		require.NoError(t, err)
	}
	require.NoError(t, w.SetComment(comment))
	require.NoError(t, w.Close())
	return buf.Bytes()
}

var text = bytes.Repeat([]byte("Half-Life 2 resource text. "), 50)

func TestMethods(t *testing.T) {
	raw := buildZip(t, "test comment",
		rawEntry{name: "stored.txt", method: kzip.Store, data: []byte("stored data")},
		rawEntry{name: "maps/", method: kzip.Store},
		rawEntry{name: "maps/deflated.txt", method: kzip.Deflate, data: text, packed: deflate(t, text)},
		rawEntry{name: "res/zstd.txt", method: uint16(codec.Zstd), data: text, packed: zstdPack(t, text)},
		rawEntry{name: "res/lzma.txt", method: uint16(codec.LZMA), data: text, packed: lzmaPack(t, text)},
		rawEntry{name: "empty/", method: kzip.Store},
	)
	s := stream.NewMemory("test.zip", raw, false)
	require.True(t, New().Probe(s))

	pkg, err := pack.OpenAs(New(), s, nil)
	require.NoError(t, err)
	defer pkg.Close()

	a, ok := vfs.FindAttribute(pkg.Attributes(), "Comment")
	require.True(t, ok)
	assert.Equal(t, "test comment", a.Value)
	assert.Equal(t, 4, pkg.Root().FileCount(true))
	assert.Equal(t, 3, pkg.Root().FolderCount(true))

	for _, tc := range []struct {
		path   string
		want   []byte
		method codec.Method
	}{
		{"stored.txt", []byte("stored data"), codec.Store},
		{"maps/deflated.txt", text, codec.Deflate},
		{"res/zstd.txt", text, codec.Zstd},
		{"res/lzma.txt", text, codec.LZMA},
	} {
		t.Run(tc.path, func(t *testing.T) {
			f, err := pkg.Root().LookupFile(tc.path)
			require.NoError(t, err)
			assert.Equal(t, tc.method, f.Compression)
			assert.True(t, f.Extractable)
			data, err := pkg.ReadFile(f)
			require.NoError(t, err)
			assert.Equal(t, tc.want, data)
			assert.Equal(t, vfs.ValidationOk, pkg.Validate(f))
		})
	}

	empty, err := pkg.Lookup("empty")
	require.NoError(t, err)
	assert.True(t, empty.IsFolder())
}

func TestCorruptEntry(t *testing.T) {
	raw := buildZip(t, "",
		rawEntry{name: "a.txt", method: kzip.Store, data: []byte("aaaa")},
		rawEntry{name: "b.txt", method: kzip.Deflate, data: text, packed: deflate(t, text)},
	)
	// flip a byte of the stored data
	i := bytes.Index(raw, []byte("aaaa"))
	raw[i] = 'b'

	pkg, err := pack.OpenAs(New(), stream.NewMemory("c.zip", raw, false), nil)
	require.NoError(t, err)
	defer pkg.Close()

	report := pkg.ValidateItem(pkg.Root())
	require.Len(t, report.Entries, 2)
	assert.Equal(t, vfs.ValidationCorrupt, report.Entries[0].Status)
	assert.Equal(t, vfs.ValidationOk, report.Entries[1].Status)
	assert.Equal(t, vfs.ValidationCorrupt, report.Status)
}

func TestNotExtractable(t *testing.T) {
	raw := buildZip(t, "",
		rawEntry{name: "secret.txt", method: kzip.Store, data: []byte("xxxx"), flags: FLAG_ENCRYPTED},
		rawEntry{name: "odd.bin", method: 97, data: []byte("yyyy")},
	)
	pkg, err := pack.OpenAs(New(), stream.NewMemory("n.zip", raw, false), nil)
	require.NoError(t, err)
	defer pkg.Close()

	for _, f := range pkg.Root().Files() {
		assert.False(t, f.Extractable, f.Name())
	}
	odd, err := pkg.Root().LookupFile("odd.bin")
	require.NoError(t, err)
	a, _ := vfs.FindAttribute(odd.Attributes, "Compression Method")
	assert.Equal(t, "0x00000061", a.String())
}

func TestBadPackages(t *testing.T) {
	good := buildZip(t, "", rawEntry{name: "a.txt", method: kzip.Store, data: []byte("aaaa")})
	endOffset := len(good) - RAW_END_SIZE

	for _, tc := range []struct {
		name string
		kind errs.Kind
		fn   func(b []byte) []byte
	}{
		{"tiny", errs.KindFormat, func(b []byte) []byte { return b[:10] }},
		{"no end record", errs.KindFormat, func(b []byte) []byte { return b[:endOffset] }},
		{"directory outside", errs.KindFormat, func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[endOffset+16:], uint32(len(b)))
			return b
		}},
		{"central signature", errs.KindFormat, func(b []byte) []byte {
			cd := binary.LittleEndian.Uint32(b[endOffset+16:])
			b[cd] = 0
			return b
		}},
		{"multi disk", errs.KindUnsupported, func(b []byte) []byte {
			binary.LittleEndian.PutUint16(b[endOffset+4:], 1)
			return b
		}},
		{"zip64", errs.KindUnsupported, func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[endOffset+16:], 0xffffffff)
			return b
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b := tc.fn(append([]byte{}, good...))
			_, err := New().Parse(stream.NewMemory("bad.zip", b, false), &pack.ParseContext{})
			require.Error(t, err)
			assert.Equal(t, tc.kind, errs.KindOf(err))
		})
	}
}

func TestEmbedded(t *testing.T) {
	inner := buildZip(t, "", rawEntry{name: "materials/x.vmt", method: kzip.Store, data: []byte("vmt")})
	outer := append([]byte("some lump data before the zip"), inner...)
	prefix := int64(len(outer) - len(inner))

	section, err := stream.NewSection(stream.NewMemory("outer", outer, false), "pakfile", prefix, int64(len(inner)))
	require.NoError(t, err)
	dir, err := ReadDirectory(section, pack.ParseContext{}.Encoding)
	require.NoError(t, err)

	tree := pack.NewTree(pack.TypeZIP, stream.NewMemory("outer", outer, false))
	require.NoError(t, dir.Populate(tree.Root, 0, prefix, tree.Codecs))
	f, err := tree.Root.LookupFile("materials/x.vmt")
	require.NoError(t, err)
	data, err := tree.ReadFile(f)
	require.NoError(t, err)
	assert.Equal(t, "vmt", string(data))
}
