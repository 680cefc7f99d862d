package web

import (
	"bytes"
	"image/png"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mogaika/hlpack/drivers/wad"
	"github.com/mogaika/hlpack/errs"
	"github.com/mogaika/hlpack/status"
	"github.com/mogaika/hlpack/vfs"
	"github.com/mogaika/hlpack/webutils"
)

type AttributeJson struct {
	Name  string
	Value string
}

func attributesJson(attrs vfs.Attributes) []AttributeJson {
	if attrs == nil {
		return nil
	}
	fields := attrs.Fields()
	result := make([]AttributeJson, len(fields))
	for i, a := range fields {
		result[i] = AttributeJson{Name: a.Name, Value: a.String()}
	}
	return result
}

type PackageJson struct {
	Name          string
	Type          string
	Description   string
	Folders       int
	Files         int
	Size          int64
	SizeOnDisk    int64
	Volumes       int
	FragmentedPct float64
	Attributes    []AttributeJson
}

func HandlerJsonPackage(w http.ResponseWriter, r *http.Request) {
	p := ServerPackage
	root := p.Root()
	webutils.WriteJson(w, &PackageJson{
		Name:          p.Name(),
		Type:          p.Type().String(),
		Description:   p.Type().Description(),
		Folders:       root.FolderCount(true),
		Files:         root.FileCount(true),
		Size:          root.Size(true),
		SizeOnDisk:    root.SizeOnDisk(true),
		Volumes:       len(p.Volumes()),
		FragmentedPct: p.Fragmentation().Percent(),
		Attributes:    attributesJson(p.Attributes()),
	})
}

type ChildJson struct {
	Name   string
	Folder bool
	Size   int64
}

type ItemJson struct {
	Path        string
	Name        string
	Folder      bool
	Size        int64
	SizeOnDisk  int64
	Children    []ChildJson     `json:",omitempty"`
	Compression string          `json:",omitempty"`
	Fragments   []vfs.Fragment  `json:",omitempty"`
	Fragmented  bool            `json:",omitempty"`
	Extractable bool            `json:",omitempty"`
	Validation  vfs.Validation  `json:",omitempty"`
	Attributes  []AttributeJson `json:",omitempty"`
}

func lookup(w http.ResponseWriter, r *http.Request) vfs.Node {
	n, err := ServerPackage.Lookup(mux.Vars(r)["path"])
	if err != nil {
		webutils.WriteError(w, err)
		return nil
	}
	return n
}

func HandlerJsonItem(w http.ResponseWriter, r *http.Request) {
	n := lookup(w, r)
	if n == nil {
		return
	}
	item := ItemJson{Path: vfs.Path(n), Name: n.Name(), Folder: n.IsFolder()}
	switch v := n.(type) {
	case *vfs.Folder:
		item.Size = v.Size(true)
		item.SizeOnDisk = v.SizeOnDisk(true)
		item.Attributes = attributesJson(v.Attributes)
		item.Children = make([]ChildJson, 0, v.Count())
		for _, c := range v.Children() {
			child := ChildJson{Name: c.Name(), Folder: c.IsFolder()}
			switch cv := c.(type) {
			case *vfs.File:
				child.Size = cv.Size
			case *vfs.Folder:
				child.Size = cv.Size(true)
			}
			item.Children = append(item.Children, child)
		}
	case *vfs.File:
		item.Size = v.Size
		item.SizeOnDisk = v.SizeOnDisk()
		item.Compression = v.Compression.String()
		item.Fragments = v.Fragments
		item.Fragmented = v.Fragmented()
		item.Extractable = v.Extractable
		item.Validation = v.Validation()
		item.Attributes = attributesJson(v.Attributes)
	}
	webutils.WriteJson(w, &item)
}

func lookupFile(w http.ResponseWriter, r *http.Request) *vfs.File {
	n := lookup(w, r)
	if n == nil {
		return nil
	}
	f, ok := n.(*vfs.File)
	if !ok {
		webutils.WriteError(w, errs.NotFound("[web] '%s' is a folder", vfs.Path(n)))
		return nil
	}
	return f
}

func HandlerDumpFile(w http.ResponseWriter, r *http.Request) {
	f := lookupFile(w, r)
	if f == nil {
		return
	}
	if !f.Extractable {
		webutils.WriteError(w, errs.Unsupported("[web] '%s' cannot be extracted", vfs.Path(f)))
		return
	}
	data, err := ServerPackage.ReadFile(f)
	if err != nil {
		webutils.WriteError(w, err)
		return
	}
	webutils.WriteFile(w, bytes.NewReader(data), f.Name())
}

func HandlerImage(w http.ResponseWriter, r *http.Request) {
	f := lookupFile(w, r)
	if f == nil {
		return
	}
	img, err := wad.ReadImage(ServerPackage, f)
	if err != nil {
		webutils.WriteError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img.Image()); err != nil {
		webutils.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	webutils.WriteResult(w, buf.Bytes())
}

type ValidationJson struct {
	Path   string
	Status vfs.Validation
}

type ValidationReportJson struct {
	Status  vfs.Validation
	Entries []ValidationJson
}

func HandlerValidate(w http.ResponseWriter, r *http.Request) {
	n := lookup(w, r)
	if n == nil {
		return
	}
	report := ServerPackage.ValidateItem(n)
	result := ValidationReportJson{Status: report.Status, Entries: make([]ValidationJson, len(report.Entries))}
	for i, e := range report.Entries {
		result.Entries[i] = ValidationJson{Path: e.Path, Status: e.Status}
	}
	status.Info("validated '%s': %v", vfs.Path(n), report.Status)
	webutils.WriteJson(w, &result)
}
