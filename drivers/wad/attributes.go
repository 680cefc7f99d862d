package wad

import (
	"github.com/mogaika/hlpack/vfs"
)

type PackageAttributes struct {
	Version uint32
}

func (a *PackageAttributes) Fields() []vfs.Attribute {
	return []vfs.Attribute{{Name: "Version", Value: a.Version}}
}

type ItemAttributes struct {
	Width          uint32
	Height         uint32
	PaletteEntries uint32
	Mipmaps        uint32
	Compressed     bool
	Type           uint8
}

func (a *ItemAttributes) Fields() []vfs.Attribute {
	return []vfs.Attribute{
		{Name: "Width", Value: a.Width},
		{Name: "Height", Value: a.Height},
		{Name: "Palette Entries", Value: a.PaletteEntries},
		{Name: "Mipmaps", Value: a.Mipmaps},
		{Name: "Compressed", Value: a.Compressed},
		{Name: "Type", Value: uint32(a.Type), Hex: true},
	}
}
