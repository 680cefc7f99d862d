package vfs

import (
	"sort"
	"strings"

	"github.com/mogaika/hlpack/errs"
)

const RootName = "root"

type Folder struct {
	name       string
	id         uint32
	parent     *Folder
	children   []Node
	index      map[string]Node
	Attributes Attributes
}

func NewRoot() *Folder {
	return NewFolder(RootName, 0)
}

func NewFolder(name string, id uint32) *Folder {
	return &Folder{name: name, id: id, index: make(map[string]Node)}
}

func (f *Folder) Name() string    { return f.name }
func (f *Folder) Parent() *Folder { return f.parent }
func (f *Folder) IsFolder() bool  { return true }
func (f *Folder) ID() uint32      { return f.id }

func (f *Folder) Children() []Node { return f.children }
func (f *Folder) Count() int       { return len(f.children) }

func (f *Folder) Child(name string) Node {
	return f.index[name]
}

func (f *Folder) add(n Node) error {
	if n.Name() == "" {
		return errs.Format("[vfs] empty item name in '%s'", Path(f))
	}
	if !ValidName(n.Name()) {
		return errs.Format("[vfs] bad item name '%s' in '%s'", n.Name(), Path(f))
	}
	if _, exists := f.index[n.Name()]; exists {
		return errs.Format("[vfs] duplicate item '%s' in '%s'", n.Name(), Path(f))
	}
	f.children = append(f.children, n)
	f.index[n.Name()] = n
	return nil
}

// ValidName reports whether name can be a single path element: not "." or
// ".." and free of separators.
func ValidName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

// AddFolder appends a new folder. Names must be unique within a folder.
func (f *Folder) AddFolder(name string, id uint32) (*Folder, error) {
	sub := NewFolder(name, id)
	if err := f.add(sub); err != nil {
		return nil, err
	}
	sub.parent = f
	return sub, nil
}

// Attach appends an existing detached folder.
func (f *Folder) Attach(sub *Folder) error {
	if err := f.add(sub); err != nil {
		return err
	}
	sub.parent = f
	return nil
}

func (f *Folder) AddFile(file *File) error {
	if err := f.add(file); err != nil {
		return err
	}
	file.parent = f
	return nil
}

// EnsureFolder walks path from f, creating missing folders. "." elements
// are skipped; ".." is rejected like any other bad name.
func (f *Folder) EnsureFolder(path string) (*Folder, error) {
	cur := f
	for _, part := range SplitPath(path) {
		if part == "." {
			continue
		}
		switch n := cur.index[part].(type) {
		case *Folder:
			cur = n
		case nil:
			sub, err := cur.AddFolder(part, 0)
			if err != nil {
				return nil, err
			}
			cur = sub
		default:
			return nil, errs.Format("[vfs] '%s' is a file, not a folder", Path(n))
		}
	}
	return cur, nil
}

// Lookup resolves a relative path. "." and ".." are understood; names match
// exactly first and case-insensitively as a fallback.
func (f *Folder) Lookup(path string) (Node, error) {
	var cur Node = f
	for _, part := range SplitPath(path) {
		folder, ok := cur.(*Folder)
		if !ok {
			return nil, errs.NotFound("[vfs] '%s' is not a folder", Path(cur))
		}
		switch part {
		case ".":
			continue
		case "..":
			if folder.parent == nil {
				return nil, errs.NotFound("[vfs] '%s' has no parent", folder.name)
			}
			cur = folder.parent
			continue
		}
		next := folder.index[part]
		if next == nil {
			for _, c := range folder.children {
				if strings.EqualFold(c.Name(), part) {
					next = c
					break
				}
			}
		}
		if next == nil {
			return nil, errs.NotFound("[vfs] '%s' not found in '%s'", part, Path(folder))
		}
		cur = next
	}
	return cur, nil
}

func (f *Folder) LookupFile(path string) (*File, error) {
	n, err := f.Lookup(path)
	if err != nil {
		return nil, err
	}
	file, ok := n.(*File)
	if !ok {
		return nil, errs.NotFound("[vfs] '%s' is a folder, not a file", path)
	}
	return file, nil
}

// SkipFolder tells Walk to skip the children of the folder just visited.
var SkipFolder = errs.NotFound("[vfs] skip folder")

// Walk visits f and its descendants depth first in child order. Returning
// SkipFolder from fn for a folder skips its children.
func (f *Folder) Walk(fn func(Node) error) error {
	if err := fn(f); err != nil {
		if err == SkipFolder {
			return nil
		}
		return err
	}
	for _, c := range f.children {
		switch n := c.(type) {
		case *Folder:
			if err := n.Walk(fn); err != nil {
				return err
			}
		default:
			if err := fn(n); err != nil {
				return err
			}
		}
	}
	return nil
}

// Files returns every file under f in traversal order.
func (f *Folder) Files() []*File {
	result := make([]*File, 0, 64)
	f.Walk(func(n Node) error {
		if file, ok := n.(*File); ok {
			result = append(result, file)
		}
		return nil
	})
	return result
}

func (f *Folder) Size(recurse bool) int64 {
	var total int64
	for _, c := range f.children {
		switch n := c.(type) {
		case *File:
			total += n.Size
		case *Folder:
			if recurse {
				total += n.Size(true)
			}
		}
	}
	return total
}

func (f *Folder) SizeOnDisk(recurse bool) int64 {
	var total int64
	for _, c := range f.children {
		switch n := c.(type) {
		case *File:
			total += n.SizeOnDisk()
		case *Folder:
			if recurse {
				total += n.SizeOnDisk(true)
			}
		}
	}
	return total
}

func (f *Folder) FolderCount(recurse bool) int {
	count := 0
	for _, c := range f.children {
		if sub, ok := c.(*Folder); ok {
			count++
			if recurse {
				count += sub.FolderCount(true)
			}
		}
	}
	return count
}

func (f *Folder) FileCount(recurse bool) int {
	count := 0
	for _, c := range f.children {
		switch n := c.(type) {
		case *File:
			count++
		case *Folder:
			if recurse {
				count += n.FileCount(true)
			}
		}
	}
	return count
}

type SortField int

const (
	SortByName SortField = iota
	SortBySize
)

type SortOrder int

const (
	Ascending SortOrder = iota
	Descending
)

func nodeSize(n Node) int64 {
	switch v := n.(type) {
	case *File:
		return v.Size
	case *Folder:
		return v.Size(true)
	}
	return 0
}

// Sort reorders children. Folders always come before files.
func (f *Folder) Sort(field SortField, order SortOrder, recurse bool) {
	sort.SliceStable(f.children, func(i, j int) bool {
		a, b := f.children[i], f.children[j]
		if a.IsFolder() != b.IsFolder() {
			return a.IsFolder()
		}
		cmp := 0
		if field == SortBySize {
			switch sa, sb := nodeSize(a), nodeSize(b); {
			case sa < sb:
				cmp = -1
			case sa > sb:
				cmp = 1
			}
		}
		if cmp == 0 {
			cmp = strings.Compare(strings.ToLower(a.Name()), strings.ToLower(b.Name()))
		}
		if order == Descending {
			return cmp > 0
		}
		return cmp < 0
	})
	if recurse {
		for _, c := range f.children {
			if sub, ok := c.(*Folder); ok {
				sub.Sort(field, order, true)
			}
		}
	}
}
