package zip

import (
	"github.com/mogaika/hlpack/vfs"
)

type PackageAttributes struct {
	Disk    uint32
	Comment string
}

func (a *PackageAttributes) Fields() []vfs.Attribute {
	return []vfs.Attribute{
		{Name: "Disk", Value: a.Disk},
		{Name: "Comment", Value: a.Comment},
	}
}

type ItemAttributes struct {
	CreateVersion     uint32
	ExtractVersion    uint32
	Flags             uint32
	CompressionMethod uint32
	CRC               uint32
	Disk              uint32
	Comment           string
}

func (a *ItemAttributes) Fields() []vfs.Attribute {
	return []vfs.Attribute{
		{Name: "Create Version", Value: a.CreateVersion},
		{Name: "Extract Version", Value: a.ExtractVersion},
		{Name: "Flags", Value: a.Flags, Hex: true},
		{Name: "Compression Method", Value: a.CompressionMethod, Hex: true},
		{Name: "CRC", Value: a.CRC, Hex: true},
		{Name: "Disk", Value: a.Disk},
		{Name: "Comment", Value: a.Comment},
	}
}
