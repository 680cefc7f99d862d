package vpk

import (
	"github.com/mogaika/hlpack/vfs"
)

type PackageAttributes struct {
	Archives uint32
	Version  uint32
}

func (a *PackageAttributes) Fields() []vfs.Attribute {
	return []vfs.Attribute{
		{Name: "Archives", Value: a.Archives},
		{Name: "Version", Value: a.Version},
	}
}

type ItemAttributes struct {
	PreloadBytes uint32
	Archive      uint32
	CRC          uint32
}

func (a *ItemAttributes) Fields() []vfs.Attribute {
	return []vfs.Attribute{
		{Name: "Preload Bytes", Value: a.PreloadBytes},
		{Name: "Archive", Value: a.Archive},
		{Name: "CRC", Value: a.CRC, Hex: true},
	}
}
