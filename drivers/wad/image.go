package wad

import (
	"encoding/binary"
	"image"
	"image/color"

	"github.com/mogaika/hlpack/errs"
	"github.com/mogaika/hlpack/pack"
	"github.com/mogaika/hlpack/vfs"
)

// Image is the first mip level of a texture lump with its palette.
type Image struct {
	Width   uint32
	Height  uint32
	Palette []byte // RGB triplets
	Pixels  []byte // palette indices
}

// ReadImage decodes the paletted image of a miptex, qpic or font lump.
func ReadImage(p *pack.Package, f *vfs.File) (*Image, error) {
	attrs, ok := f.Attributes.(*ItemAttributes)
	if !ok {
		return nil, errs.Unsupported("[wad] '%s' is not a wad lump", f.Name())
	}
	data, err := p.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return DecodeImage(attrs.Type, data)
}

func DecodeImage(lumpType uint8, data []byte) (*Image, error) {
	u32 := func(off int) (uint32, bool) {
		if off < 0 || off+4 > len(data) {
			return 0, false
		}
		return binary.LittleEndian.Uint32(data[off:]), true
	}

	var img Image
	var pixelsOffset, paletteOffset int
	var ok1, ok2 bool
	switch lumpType {
	case LUMP_MIPTEX:
		img.Width, ok1 = u32(NAME_SIZE)
		img.Height, ok2 = u32(NAME_SIZE + 4)
		var mip0, mip3 uint32
		var ok3, ok4 bool
		mip0, ok3 = u32(NAME_SIZE + 8)
		mip3, ok4 = u32(NAME_SIZE + 20)
		if !ok3 || !ok4 {
			return nil, errs.Format("[wad] miptex header truncated")
		}
		pixelsOffset = int(mip0)
		paletteOffset = int(mip3) + int(img.Width/8)*int(img.Height/8)
	case LUMP_QPIC:
		img.Width, ok1 = u32(0)
		img.Height, ok2 = u32(4)
		pixelsOffset = 8
		paletteOffset = pixelsOffset + int(img.Width)*int(img.Height)
	case LUMP_FONT:
		// width is fixed at 256, followed by row info and 256 char infos
		img.Width, ok1 = u32(0)
		img.Height, ok2 = u32(4)
		pixelsOffset = 16 + 256*4
		paletteOffset = pixelsOffset + int(img.Width)*int(img.Height)
	default:
		return nil, errs.Unsupported("[wad] lump type 0x%x has no image", lumpType)
	}
	if !ok1 || !ok2 {
		return nil, errs.Format("[wad] image header truncated")
	}

	pixelCount := int(img.Width) * int(img.Height)
	if pixelCount <= 0 || pixelsOffset+pixelCount > len(data) || paletteOffset+2 > len(data) {
		return nil, errs.Format("[wad] image data truncated")
	}
	colors := int(binary.LittleEndian.Uint16(data[paletteOffset:]))
	if paletteOffset+2+colors*3 > len(data) {
		return nil, errs.Format("[wad] palette truncated")
	}
	img.Pixels = data[pixelsOffset : pixelsOffset+pixelCount]
	img.Palette = data[paletteOffset+2 : paletteOffset+2+colors*3]
	return &img, nil
}

// RGB expands the paletted pixels into RGB triplets.
func (img *Image) RGB() []byte {
	out := make([]byte, len(img.Pixels)*3)
	for i, idx := range img.Pixels {
		if int(idx)*3+3 <= len(img.Palette) {
			copy(out[i*3:], img.Palette[int(idx)*3:int(idx)*3+3])
		}
	}
	return out
}

// Image converts to an image.Paletted for encoding.
func (img *Image) Image() image.Image {
	palette := make(color.Palette, len(img.Palette)/3)
	for i := range palette {
		palette[i] = color.RGBA{img.Palette[i*3], img.Palette[i*3+1], img.Palette[i*3+2], 0xff}
	}
	if len(palette) == 0 {
		palette = color.Palette{color.Black}
	}
	result := image.NewPaletted(image.Rect(0, 0, int(img.Width), int(img.Height)), palette)
	copy(result.Pix, img.Pixels)
	for i, idx := range result.Pix {
		if int(idx) >= len(palette) {
			result.Pix[i] = 0
		}
	}
	return result
}
