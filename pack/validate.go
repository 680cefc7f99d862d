package pack

import (
	"context"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mogaika/hlpack/vfs"
)

// Validate returns the cached status of f, computing it on first use. It
// never modifies the package.
func (p *Package) Validate(f *vfs.File) vfs.Validation {
	if v := f.Validation(); v != vfs.ValidationUnknown {
		return v
	}
	v := p.validate(f)
	// a closed package reports Incomplete without remembering it
	if !p.Closed() {
		f.SetValidation(v)
	}
	return v
}

// Revalidate drops the cached status of f and validates it again.
func (p *Package) Revalidate(f *vfs.File) vfs.Validation {
	f.ResetValidation()
	return p.Validate(f)
}

func (p *Package) validate(f *vfs.File) vfs.Validation {
	p.lock.RLock()
	defer p.lock.RUnlock()
	if p.checkOpen() != nil {
		return vfs.ValidationIncomplete
	}
	return p.tree.validate(f)
}

func (t *Tree) validate(f *vfs.File) vfs.Validation {
	if !t.Complete(f) {
		return vfs.ValidationIncomplete
	}
	if f.Checksum == nil {
		return vfs.ValidationUnavailable
	}
	verifier := f.Checksum.NewVerifier()
	if f.Compressed() {
		raw, err := t.ReadStored(f)
		if err != nil {
			return vfs.ValidationIncomplete
		}
		data, err := t.decode(f, raw)
		if err != nil {
			log.Warnf("[pack] '%s' cannot be decoded: %v", vfs.Path(f), err)
			return vfs.ValidationCorrupt
		}
		verifier.Write(data)
	} else {
		var total int64
		err := t.WalkStored(f, nil, func(b []byte) error {
			total += int64(len(b))
			verifier.Write(b)
			return nil
		})
		if err != nil {
			return vfs.ValidationIncomplete
		}
		if total != f.Size {
			return vfs.ValidationCorrupt
		}
	}
	if !verifier.Valid() {
		return vfs.ValidationCorrupt
	}
	return vfs.ValidationOk
}

type ValidationEntry struct {
	Path   string
	File   *vfs.File
	Status vfs.Validation
}

type ValidationReport struct {
	Entries []ValidationEntry
	// Status is the most severe status among Entries.
	Status vfs.Validation
}

// ValidateItem validates n, or every file below n when it is a folder. It
// never stops at corrupt files.
func (p *Package) ValidateItem(n vfs.Node) ValidationReport {
	var report ValidationReport
	add := func(f *vfs.File) {
		e := ValidationEntry{Path: vfs.Path(f), File: f, Status: p.Validate(f)}
		report.Entries = append(report.Entries, e)
		report.Status = vfs.MaxValidation(report.Status, e.Status)
	}
	switch v := n.(type) {
	case *vfs.File:
		add(v)
	case *vfs.Folder:
		for _, f := range v.Files() {
			add(f)
		}
		if len(report.Entries) == 0 {
			report.Status = vfs.ValidationOk
		}
	}
	return report
}

// ValidateParallel validates files with at most workers goroutines and
// returns the statuses in the order of files.
func (p *Package) ValidateParallel(ctx context.Context, files []*vfs.File, workers int) ([]vfs.Validation, error) {
	if workers <= 0 {
		workers = 1
	}
	result := make([]vfs.Validation, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			result[i] = p.Validate(f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}
