package pack

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/mogaika/hlpack/config"
	"github.com/mogaika/hlpack/errs"
	"github.com/mogaika/hlpack/stream"
	"github.com/mogaika/hlpack/utils"
)

// ProbeSize is the most a Probe reads from the start of a stream.
const ProbeSize = 8

// Format is one container format. Probe is advisory and never fails; Parse
// either returns a complete tree or an error.
type Format interface {
	Type() Type
	Probe(s stream.Stream) bool
	Parse(s stream.Stream, ctx *ParseContext) (*Tree, error)
}

// Serializer is implemented by formats that can write a tree back.
type Serializer interface {
	Serialize(t *Tree, target stream.Stream) error
}

// ProbeMagic reads up to ProbeSize bytes for magic checks. Short streams
// return what exists.
func ProbeMagic(s stream.Stream) []byte {
	n := int64(ProbeSize)
	if s.Size() < n {
		n = s.Size()
	}
	if n <= 0 {
		return nil
	}
	buf := make([]byte, n)
	if err := stream.ReadFull(s, buf, 0); err != nil {
		return nil
	}
	return buf
}

// ParseContext carries what a parser needs besides the primary stream.
type ParseContext struct {
	// Name is the package path, used to locate secondary volumes.
	Name     string
	Fs       afero.Fs
	Mode     stream.Mode
	ViewSize int64
	// NCFRoot is the directory holding NCF file contents.
	NCFRoot  string
	Encoding config.Encoding
}

func (c *ParseContext) withDefaults(s stream.Stream) *ParseContext {
	result := ParseContext{}
	if c != nil {
		result = *c
	}
	if result.Name == "" && s != nil {
		result.Name = s.Name()
	}
	if result.Fs == nil {
		result.Fs = afero.NewOsFs()
	}
	if result.Mode == 0 {
		result.Mode = stream.ModeRead
	}
	if result.ViewSize <= 0 {
		result.ViewSize = stream.DefaultViewSize
	}
	return &result
}

// OpenVolume opens a secondary read-only volume with the package's mode.
func (c *ParseContext) OpenVolume(path string) (stream.Stream, error) {
	mode := c.Mode &^ (stream.ModeWrite | stream.ModeCreate)
	if mode == 0 {
		mode = stream.ModeRead
	}
	return stream.OpenWithViewSize(c.Fs, path, mode, c.ViewSize)
}

// VolumeExists reports whether path names a regular file on the context fs.
func (c *ParseContext) VolumeExists(path string) bool {
	info, err := c.Fs.Stat(path)
	return err == nil && !info.IsDir()
}

// Registry keeps formats in their detection priority order.
type Registry struct {
	formats []Format
}

func NewRegistry(formats ...Format) *Registry {
	return &Registry{formats: formats}
}

func (r *Registry) Formats() []Format { return r.formats }

func (r *Registry) ByType(t Type) Format {
	for _, f := range r.formats {
		if f.Type() == t {
			return f
		}
	}
	return nil
}

// Detect returns the first format whose Probe accepts s.
func (r *Registry) Detect(s stream.Stream) (Format, error) {
	for _, f := range r.formats {
		if f.Probe(s) {
			log.Debugf("[pack] '%s' detected as %v", s.Name(), f.Type())
			return f, nil
		}
	}
	log.Debugf("[pack] '%s' starts with '%s'", s.Name(), utils.QuoteBytes(ProbeMagic(s)))
	return nil, errs.UnknownFormat("[pack] '%s' does not match any known package format", s.Name())
}
