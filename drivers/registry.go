// Package drivers assembles the default format registry.
package drivers

import (
	"github.com/mogaika/hlpack/drivers/gcf"
	"github.com/mogaika/hlpack/drivers/pak"
	"github.com/mogaika/hlpack/drivers/vbsp"
	"github.com/mogaika/hlpack/drivers/vpk"
	"github.com/mogaika/hlpack/drivers/wad"
	"github.com/mogaika/hlpack/drivers/zip"
	"github.com/mogaika/hlpack/pack"
)

// NewRegistry returns every supported format in detection order. VPK comes
// last because version 0 directories are recognized by name only.
func NewRegistry() *pack.Registry {
	return pack.NewRegistry(
		gcf.New(),
		gcf.NewNCF(),
		vbsp.New(),
		pak.New(),
		wad.New(),
		zip.New(),
		vpk.New(),
	)
}
