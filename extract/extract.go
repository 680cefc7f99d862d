// Package extract copies package items to a destination filesystem and
// rewrites fragmented packages.
package extract

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/mogaika/hlpack/errs"
	"github.com/mogaika/hlpack/pack"
	"github.com/mogaika/hlpack/stream"
	"github.com/mogaika/hlpack/vfs"
)

// Result describes one extracted file.
type Result struct {
	// Item is the path inside the package.
	Item string
	// Dest is the destination path.
	Dest         string
	BytesWritten int64
	Skipped      bool
	Err          error
}

type Report struct {
	Results      []Result
	Files        int
	Failed       int
	Skipped      int
	BytesWritten int64
}

func (r *Report) add(res Result) {
	r.Results = append(r.Results, res)
	r.Files++
	r.BytesWritten += res.BytesWritten
	switch {
	case res.Err != nil:
		r.Failed++
	case res.Skipped:
		r.Skipped++
	}
}

// Err returns the first failure or nil.
func (r *Report) Err() error {
	for _, res := range r.Results {
		if res.Err != nil {
			return res.Err
		}
	}
	return nil
}

// Extractor writes package files to Fs. Progress, when set, is called after
// every file with the running index and the total number of files.
type Extractor struct {
	Pkg            *pack.Package
	Fs             afero.Fs
	Overwrite      bool
	StopOnError    bool
	CopyBufferSize int
	Progress       func(res Result, done, total int)
}

func New(pkg *pack.Package, fs afero.Fs) *Extractor {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Extractor{
		Pkg:            pkg,
		Fs:             fs,
		Overwrite:      true,
		CopyBufferSize: stream.DefaultCopyBufferSize,
	}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// ExtractFile writes f to destDir/<name of f>.
func (e *Extractor) ExtractFile(f *vfs.File, destDir string) (int64, error) {
	res := e.extract(f, destDir, filepath.Join(destDir, f.Name()), make([]byte, e.bufferSize()))
	return res.BytesWritten, res.Err
}

// ExtractItem extracts n below destDir. A folder is recreated under its own
// name, except the root whose children land directly in destDir.
func (e *Extractor) ExtractItem(n vfs.Node, destDir string) Report {
	switch v := n.(type) {
	case *vfs.File:
		return e.run([]*vfs.File{v}, destDir, func(*vfs.File) string {
			return filepath.Join(destDir, v.Name())
		})
	case *vfs.Folder:
		base := destDir
		if v.Parent() != nil {
			base = filepath.Join(destDir, v.Name())
		}
		// empty folders are recreated too
		v.Walk(func(n vfs.Node) error {
			if sub, ok := n.(*vfs.Folder); ok && sub.Count() == 0 {
				dir := filepath.Join(base, filepath.FromSlash(vfs.RelPath(v, sub)))
				if err := e.Fs.MkdirAll(dir, 0755); err != nil {
					log.Warnf("[extract] Cannot create '%s': %v", dir, err)
				}
			}
			return nil
		})
		return e.run(v.Files(), destDir, func(f *vfs.File) string {
			return filepath.Join(base, filepath.FromSlash(vfs.RelPath(v, f)))
		})
	}
	return Report{}
}

// ExtractPattern extracts every file below root whose relative path (or
// name, when pattern has no separator) matches the wildcard pattern. The
// folder structure relative to root is kept.
func (e *Extractor) ExtractPattern(root *vfs.Folder, pattern, destDir string) Report {
	matchPath := len(vfs.SplitPath(pattern)) > 1
	var files []*vfs.File
	for _, f := range root.Files() {
		subject := f.Name()
		if matchPath {
			subject = vfs.RelPath(root, f)
		}
		if vfs.MatchName(pattern, subject, 0) {
			files = append(files, f)
		}
	}
	return e.run(files, destDir, func(f *vfs.File) string {
		return filepath.Join(destDir, filepath.FromSlash(vfs.RelPath(root, f)))
	})
}

func (e *Extractor) run(files []*vfs.File, destDir string, dest func(*vfs.File) string) Report {
	var report Report
	buf := make([]byte, e.bufferSize())
	for i, f := range files {
		res := e.extract(f, destDir, dest(f), buf)
		report.add(res)
		if e.Progress != nil {
			e.Progress(res, i+1, len(files))
		}
		if res.Err != nil {
			log.Warnf("%v", res.Err)
			if e.StopOnError {
				break
			}
		}
	}
	return report
}

func (e *Extractor) bufferSize() int {
	if e.CopyBufferSize <= 0 {
		return stream.DefaultCopyBufferSize
	}
	return e.CopyBufferSize
}

func (e *Extractor) fail(res Result, written int64, err error) Result {
	res.BytesWritten = written
	res.Err = &errs.ExtractionError{Path: res.Item, LastGoodOffset: written, Err: err}
	return res
}

// contained reports whether dest lies strictly below destDir.
func contained(destDir, dest string) bool {
	rel, err := filepath.Rel(filepath.Clean(destDir), filepath.Clean(dest))
	if err != nil || rel == "." || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (e *Extractor) extract(f *vfs.File, destDir, dest string, buf []byte) Result {
	res := Result{Item: vfs.Path(f), Dest: dest}
	if res.Item == "" {
		res.Item = f.Name()
	}

	if !contained(destDir, dest) {
		return e.fail(res, 0, errs.Format("[extract] '%s' resolves outside of '%s'", res.Item, destDir))
	}
	if !f.Extractable {
		return e.fail(res, 0, errs.Unsupported("[extract] '%s' cannot be extracted", res.Item))
	}
	if !e.Overwrite {
		if _, err := e.Fs.Stat(dest); err == nil {
			log.Debugf("[extract] Skipping existing '%s'", dest)
			res.Skipped = true
			return res
		}
	}

	// decode before touching the destination so a bad stream leaves nothing
	var decoded []byte
	if f.Compressed() {
		data, err := e.Pkg.ReadFile(f)
		if err != nil {
			return e.fail(res, 0, err)
		}
		decoded = data
	}

	if err := e.Fs.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return e.fail(res, 0, errs.WrapIO(err, "[extract] Cannot create folder for '%s'", dest))
	}
	out, err := e.Fs.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return e.fail(res, 0, errs.WrapIO(err, "[extract] Cannot create '%s'", dest))
	}
	w := &countingWriter{w: out}

	if decoded != nil {
		_, err = w.Write(decoded)
	} else {
		_, err = e.Pkg.CopyTo(f, w, buf)
	}
	if cerr := out.Close(); err == nil && cerr != nil {
		err = errs.WrapIO(cerr, "[extract] Cannot close '%s'", dest)
	}
	if err == nil && w.n != f.Size {
		err = errs.IO("[extract] '%s' wrote %d of %d bytes", res.Item, w.n, f.Size)
	}
	if err != nil {
		return e.fail(res, w.n, err)
	}

	res.BytesWritten = w.n
	log.Debugf("[extract] '%s' -> '%s' (%d bytes)", res.Item, dest, w.n)
	return res
}
