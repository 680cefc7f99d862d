package web

import (
	"encoding/binary"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mogaika/hlpack/drivers"
	"github.com/mogaika/hlpack/drivers/vpk"
	"github.com/mogaika/hlpack/drivers/wad"
	"github.com/mogaika/hlpack/pack"
	"github.com/mogaika/hlpack/stream"
)

func openBuilt(t *testing.T, ser pack.Serializer, name string, b *pack.Builder) *pack.Package {
	t.Helper()
	mem := stream.NewMemory(name, nil, true)
	require.NoError(t, ser.Serialize(b.Tree(), mem))
	pkg, err := pack.Open(drivers.NewRegistry(), mem, nil)
	require.NoError(t, err)
	t.Cleanup(func() { pkg.Close() })
	return pkg
}

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	b := pack.NewBuilder("src")
	_, err := b.AddFile("a.txt", []byte("0123456789"))
	require.NoError(t, err)
	_, err = b.AddFile("dir/b.txt", []byte("hello"))
	require.NoError(t, err)
	pkg := openBuilt(t, vpk.New(), "test_dir.vpk", b)

	srv := httptest.NewServer(NewRouter(pkg))
	t.Cleanup(srv.Close)
	return srv
}

func getJson(t *testing.T, url string, v interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	return resp.StatusCode
}

func TestJsonPackage(t *testing.T) {
	srv := testServer(t)
	var p PackageJson
	require.Equal(t, http.StatusOK, getJson(t, srv.URL+"/json/package", &p))
	assert.Equal(t, "VPK", p.Type)
	assert.Equal(t, 2, p.Files)
	assert.Equal(t, 1, p.Folders)
	assert.Equal(t, int64(15), p.Size)
}

func TestJsonItem(t *testing.T) {
	srv := testServer(t)

	var root ItemJson
	require.Equal(t, http.StatusOK, getJson(t, srv.URL+"/json/item", &root))
	assert.True(t, root.Folder)
	assert.Len(t, root.Children, 2)

	var dir ItemJson
	require.Equal(t, http.StatusOK, getJson(t, srv.URL+"/json/item/dir", &dir))
	assert.Equal(t, "dir", dir.Path)
	require.Len(t, dir.Children, 1)
	assert.Equal(t, ChildJson{Name: "b.txt", Size: 5}, dir.Children[0])

	var file ItemJson
	require.Equal(t, http.StatusOK, getJson(t, srv.URL+"/json/item/dir/b.txt", &file))
	assert.False(t, file.Folder)
	assert.Equal(t, int64(5), file.Size)
	assert.True(t, file.Extractable)
	assert.Equal(t, "store", file.Compression)

	var e struct{ Error string }
	assert.Equal(t, http.StatusNotFound, getJson(t, srv.URL+"/json/item/missing.txt", &e))
	assert.NotEmpty(t, e.Error)
}

func TestDump(t *testing.T) {
	srv := testServer(t)

	resp, err := http.Get(srv.URL + "/dump/dir/b.txt")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "b.txt")
	body := make([]byte, 16)
	n, _ := resp.Body.Read(body)
	assert.Equal(t, "hello", string(body[:n]))

	var e struct{ Error string }
	assert.Equal(t, http.StatusNotFound, getJson(t, srv.URL+"/dump/dir", &e))
}

func TestValidate(t *testing.T) {
	srv := testServer(t)

	var report struct {
		Status  string
		Entries []struct {
			Path   string
			Status string
		}
	}
	require.Equal(t, http.StatusOK, getJson(t, srv.URL+"/validate", &report))
	assert.Equal(t, "OK", report.Status)
	require.Len(t, report.Entries, 2)
	assert.Equal(t, "dir/b.txt", report.Entries[1].Path)
}

func TestImage(t *testing.T) {
	const w, h = 4, 2
	lump := make([]byte, 8, 8+w*h+2+3*2)
	binary.LittleEndian.PutUint32(lump[0:], w)
	binary.LittleEndian.PutUint32(lump[4:], h)
	lump = append(lump, 0, 1, 0, 1, 1, 0, 1, 0)
	lump = append(lump, 2, 0, 0xff, 0, 0, 0, 0, 0xff)

	b := pack.NewBuilder("src")
	f, err := b.AddFile("CONCHARS", lump)
	require.NoError(t, err)
	f.Attributes = &wad.ItemAttributes{Type: wad.LUMP_QPIC}
	_, err = b.AddFile("notes", []byte("plain"))
	require.NoError(t, err)
	pkg := openBuilt(t, wad.New(), "test.wad", b)

	srv := httptest.NewServer(NewRouter(pkg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/image/CONCHARS")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, w, img.Bounds().Dx())
	assert.Equal(t, h, img.Bounds().Dy())
}
