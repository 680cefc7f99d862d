package pack

import (
	"hash/crc32"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/mogaika/hlpack/errs"
	"github.com/mogaika/hlpack/stream"
	"github.com/mogaika/hlpack/vfs"
)

// Builder assembles a tree whose contents live in one in-memory volume. It
// is the input side of packing a directory into a new package.
type Builder struct {
	tree *Tree
	data *stream.Memory
}

func NewBuilder(name string) *Builder {
	data := stream.NewMemory(name, nil, true)
	return &Builder{tree: NewTree(TypeUnknown, data), data: data}
}

func (b *Builder) AddFolder(p string) (*vfs.Folder, error) {
	return b.tree.Root.EnsureFolder(p)
}

// AddFile stores content at p, creating parent folders. The file gets a
// CRC32 checksum.
func (b *Builder) AddFile(p string, content []byte) (*vfs.File, error) {
	parts := vfs.SplitPath(p)
	if len(parts) == 0 {
		return nil, errs.Format("[pack] empty file path")
	}
	name := parts[len(parts)-1]
	folder, err := b.tree.Root.EnsureFolder(strings.Join(parts[:len(parts)-1], vfs.Separator))
	if err != nil {
		return nil, err
	}
	f := vfs.NewFile(name, uint32(b.tree.Root.FileCount(true)), int64(len(content)))
	offset := b.data.Size()
	if _, err := b.data.WriteAt(content, offset); err != nil {
		return nil, err
	}
	if len(content) != 0 {
		f.Fragments = []vfs.Fragment{{Volume: 0, Offset: offset, Size: int64(len(content))}}
	}
	f.Checksum = vfs.NewCRC32Checksum(crc32.ChecksumIEEE(content))
	if err := folder.AddFile(f); err != nil {
		return nil, err
	}
	return f, nil
}

func (b *Builder) Tree() *Tree { return b.tree }

// AddDir adds every file below dir on fs, keeping the folder structure.
// Empty folders are kept too.
func (b *Builder) AddDir(fs afero.Fs, dir string) error {
	return afero.Walk(fs, dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return errs.WrapIO(err, "[pack] walking '%s'", p)
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return errs.WrapIO(err, "[pack] '%s'", p)
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if info.IsDir() {
			_, err := b.AddFolder(rel)
			return err
		}
		data, err := afero.ReadFile(fs, p)
		if err != nil {
			return errs.WrapIO(err, "[pack] reading '%s'", p)
		}
		log.Debugf("[pack] adding '%s' (%d bytes)", rel, len(data))
		_, err = b.AddFile(rel, data)
		return err
	})
}
