package zip

import (
	"encoding/binary"
)

const (
	LOCAL_SIGNATURE   = 0x04034b50
	CENTRAL_SIGNATURE = 0x02014b50
	END_SIGNATURE     = 0x06054b50

	RAW_LOCAL_SIZE   = 30
	RAW_CENTRAL_SIZE = 46
	RAW_END_SIZE     = 22

	MAX_COMMENT_SIZE = 0xffff

	FLAG_ENCRYPTED = 0x1

	// lzma entries start with a version and a properties length
	LZMA_HEADER_SIZE = 4
)

type EndOfCentralDirectory struct {
	Disk            uint16
	DirectoryDisk   uint16
	DiskEntries     uint16
	Entries         uint16
	DirectorySize   uint32
	DirectoryOffset uint32
	CommentLength   uint16
}

func (e *EndOfCentralDirectory) FromBuf(b []byte) {
	e.Disk = binary.LittleEndian.Uint16(b[4:])
	e.DirectoryDisk = binary.LittleEndian.Uint16(b[6:])
	e.DiskEntries = binary.LittleEndian.Uint16(b[8:])
	e.Entries = binary.LittleEndian.Uint16(b[10:])
	e.DirectorySize = binary.LittleEndian.Uint32(b[12:])
	e.DirectoryOffset = binary.LittleEndian.Uint32(b[16:])
	e.CommentLength = binary.LittleEndian.Uint16(b[20:])
}

type CentralHeader struct {
	CreateVersion    uint16
	ExtractVersion   uint16
	Flags            uint16
	Method           uint16
	ModTime          uint16
	ModDate          uint16
	CRC              uint32
	CompressedSize   uint32
	UncompressedSize uint32
	NameLength       uint16
	ExtraLength      uint16
	CommentLength    uint16
	DiskStart        uint16
	InternalAttrs    uint16
	ExternalAttrs    uint32
	LocalOffset      uint32
}

func (h *CentralHeader) FromBuf(b []byte) {
	h.CreateVersion = binary.LittleEndian.Uint16(b[4:])
	h.ExtractVersion = binary.LittleEndian.Uint16(b[6:])
	h.Flags = binary.LittleEndian.Uint16(b[8:])
	h.Method = binary.LittleEndian.Uint16(b[10:])
	h.ModTime = binary.LittleEndian.Uint16(b[12:])
	h.ModDate = binary.LittleEndian.Uint16(b[14:])
	h.CRC = binary.LittleEndian.Uint32(b[16:])
	h.CompressedSize = binary.LittleEndian.Uint32(b[20:])
	h.UncompressedSize = binary.LittleEndian.Uint32(b[24:])
	h.NameLength = binary.LittleEndian.Uint16(b[28:])
	h.ExtraLength = binary.LittleEndian.Uint16(b[30:])
	h.CommentLength = binary.LittleEndian.Uint16(b[32:])
	h.DiskStart = binary.LittleEndian.Uint16(b[34:])
	h.InternalAttrs = binary.LittleEndian.Uint16(b[36:])
	h.ExternalAttrs = binary.LittleEndian.Uint32(b[38:])
	h.LocalOffset = binary.LittleEndian.Uint32(b[42:])
}

// LocalHeader keeps only what locating the data needs.
type LocalHeader struct {
	Signature   uint32
	NameLength  uint16
	ExtraLength uint16
}

func (h *LocalHeader) FromBuf(b []byte) {
	h.Signature = binary.LittleEndian.Uint32(b[0:])
	h.NameLength = binary.LittleEndian.Uint16(b[26:])
	h.ExtraLength = binary.LittleEndian.Uint16(b[28:])
}
