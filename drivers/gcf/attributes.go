package gcf

import (
	"github.com/mogaika/hlpack/vfs"
)

type PackageAttributes struct {
	Version           uint32
	CacheID           uint32
	AllocatedBlocks   uint32
	UsedBlocks        uint32
	BlockLength       uint32
	LastVersionPlayed uint32
}

func (a *PackageAttributes) Fields() []vfs.Attribute {
	return []vfs.Attribute{
		{Name: "Version", Value: a.Version},
		{Name: "Cache ID", Value: a.CacheID},
		{Name: "Allocated Blocks", Value: a.AllocatedBlocks},
		{Name: "Used Blocks", Value: a.UsedBlocks},
		{Name: "Block Length", Value: a.BlockLength},
		{Name: "Last Version Played", Value: a.LastVersionPlayed},
	}
}

type NCFPackageAttributes struct {
	Version           uint32
	CacheID           uint32
	LastVersionPlayed uint32
}

func (a *NCFPackageAttributes) Fields() []vfs.Attribute {
	return []vfs.Attribute{
		{Name: "Version", Value: a.Version},
		{Name: "Cache ID", Value: a.CacheID},
		{Name: "Last Version Played", Value: a.LastVersionPlayed},
	}
}

// ItemAttributes are shared by GCF and NCF items. Fragmentation is only
// meaningful for GCF files.
type ItemAttributes struct {
	Flags         uint32
	Fragmentation float64
	hasBlocks     bool
}

func (a *ItemAttributes) Encrypted() bool      { return a.Flags&FLAG_ENCRYPTED != 0 }
func (a *ItemAttributes) CopyLocal() bool      { return a.Flags&FLAG_COPY_LOCAL != 0 }
func (a *ItemAttributes) OverwriteLocal() bool { return a.Flags&FLAG_COPY_LOCAL_NO_OVERWRITE == 0 }
func (a *ItemAttributes) BackupLocal() bool    { return a.Flags&FLAG_BACKUP_LOCAL != 0 }

func (a *ItemAttributes) Fields() []vfs.Attribute {
	fields := []vfs.Attribute{
		{Name: "Encrypted", Value: a.Encrypted()},
		{Name: "Copy Locally", Value: a.CopyLocal()},
		{Name: "Overwrite Local Copy", Value: a.OverwriteLocal()},
		{Name: "Backup Local Copy", Value: a.BackupLocal()},
		{Name: "Flags", Value: a.Flags, Hex: true},
	}
	if a.hasBlocks {
		fields = append(fields, vfs.Attribute{Name: "Fragmentation", Value: a.Fragmentation})
	}
	return fields
}
