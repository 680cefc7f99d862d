// Package pack binds a parsed tree to its streams. It detects the format
// of a stream through a Registry, owns the volumes for the package lifetime
// and validates files against their stored checksums.
package pack

import (
	"io"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/mogaika/hlpack/errs"
	"github.com/mogaika/hlpack/stream"
	"github.com/mogaika/hlpack/utils"
	"github.com/mogaika/hlpack/vfs"
)

type Package struct {
	// lock is shared by reads and held exclusively while the package is
	// rewritten.
	lock   sync.RWMutex
	format Format
	tree   *Tree
	name   string
	closed atomic.Bool
}

// Open detects the format of s and parses it. s is owned by the package on
// success and closed on failure.
func Open(reg *Registry, s stream.Stream, ctx *ParseContext) (*Package, error) {
	format, err := reg.Detect(s)
	if err != nil {
		s.Close()
		return nil, err
	}
	return OpenAs(format, s, ctx)
}

// OpenAs parses s with a known format.
func OpenAs(format Format, s stream.Stream, ctx *ParseContext) (*Package, error) {
	ctx = ctx.withDefaults(s)
	tree, err := format.Parse(s, ctx)
	if err != nil {
		s.Close()
		return nil, err
	}
	log.Debugf("[pack] '%s' parsed as %v: %d folders, %d files",
		ctx.Name, format.Type(), tree.Root.FolderCount(true), tree.Root.FileCount(true))
	if tree.Attributes != nil {
		utils.LogDump("pack", tree.Attributes)
	}
	return &Package{format: format, tree: tree, name: ctx.Name}, nil
}

// NewPackage wraps a tree that was built rather than parsed.
func NewPackage(format Format, tree *Tree, name string) *Package {
	return &Package{format: format, tree: tree, name: name}
}

// OpenFile opens path on ctx.Fs with ctx.Mode and parses it.
func OpenFile(reg *Registry, path string, ctx *ParseContext) (*Package, error) {
	local := ParseContext{}
	if ctx != nil {
		local = *ctx
	}
	local.Name = path
	c := local.withDefaults(nil)
	s, err := stream.OpenWithViewSize(c.Fs, path, c.Mode, c.ViewSize)
	if err != nil {
		return nil, err
	}
	return Open(reg, s, c)
}

func (p *Package) Type() Type                 { return p.tree.Type }
func (p *Package) Format() Format             { return p.format }
func (p *Package) Name() string               { return p.name }
func (p *Package) Root() *vfs.Folder          { return p.tree.Root }
func (p *Package) Attributes() vfs.Attributes { return p.tree.Attributes }
func (p *Package) Volumes() []*Volume         { return p.tree.Volumes }

// Tree gives access to the parsed tree. Callers that only read may use it
// directly; rewriting goes through Exclusive.
func (p *Package) Tree() *Tree { return p.tree }

// Stream is the primary volume.
func (p *Package) Stream() stream.Stream { return p.tree.Primary() }

// Close releases every volume. Later reads fail with an io error.
func (p *Package) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.tree.Close()
}

func (p *Package) Closed() bool { return p.closed.Load() }

func (p *Package) checkOpen() error {
	if p.closed.Load() {
		return errs.IO("[pack] package '%s' is closed", p.name)
	}
	return nil
}

// Exclusive runs fn while holding the package lock exclusively.
func (p *Package) Exclusive(fn func(t *Tree) error) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if err := p.checkOpen(); err != nil {
		return err
	}
	return fn(p.tree)
}

func (p *Package) ReadFile(f *vfs.File) ([]byte, error) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	return p.tree.ReadFile(f)
}

func (p *Package) ReadStored(f *vfs.File) ([]byte, error) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	return p.tree.ReadStored(f)
}

func (p *Package) CopyTo(f *vfs.File, w io.Writer, buf []byte) (int64, error) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	if err := p.checkOpen(); err != nil {
		return 0, err
	}
	return p.tree.CopyTo(f, w, buf)
}

// Lookup resolves a path from the root.
func (p *Package) Lookup(path string) (vfs.Node, error) {
	return p.tree.Root.Lookup(path)
}

// Serializer returns the format's serializer or an Unsupported error.
func (p *Package) Serializer() (Serializer, error) {
	if s, ok := p.format.(Serializer); ok {
		return s, nil
	}
	return nil, errs.Unsupported("[pack] %v packages cannot be written", p.Type())
}

type FragmentationReport struct {
	Files           int
	FragmentedFiles int
}

func (r FragmentationReport) Percent() float64 {
	if r.Files == 0 {
		return 0
	}
	return float64(r.FragmentedFiles) * 100 / float64(r.Files)
}

func (p *Package) Fragmentation() FragmentationReport {
	p.lock.RLock()
	defer p.lock.RUnlock()
	var r FragmentationReport
	for _, f := range p.tree.Root.Files() {
		r.Files++
		if f.Fragmented() {
			r.FragmentedFiles++
		}
	}
	return r
}
