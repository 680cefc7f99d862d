package wad

import (
	"encoding/binary"

	"github.com/mogaika/hlpack/config"
	"github.com/mogaika/hlpack/utils"
)

const (
	MAGIC           = "WAD3"
	RAW_HEADER_SIZE = 12
	RAW_LUMP_SIZE   = 32
	NAME_SIZE       = 16
)

const (
	LUMP_PALETTE = 0x40
	LUMP_QPIC    = 0x42
	LUMP_MIPTEX  = 0x43
	LUMP_RAW     = 0x44
	LUMP_FONT    = 0x46
)

type Header struct {
	LumpCount  uint32
	LumpOffset uint32
}

func (h *Header) FromBuf(b []byte) {
	h.LumpCount = binary.LittleEndian.Uint32(b[4:])
	h.LumpOffset = binary.LittleEndian.Uint32(b[8:])
}

func (h *Header) Marshal() []byte {
	buf := make([]byte, RAW_HEADER_SIZE)
	copy(buf, MAGIC)
	binary.LittleEndian.PutUint32(buf[4:], h.LumpCount)
	binary.LittleEndian.PutUint32(buf[8:], h.LumpOffset)
	return buf
}

type Lump struct {
	Offset      uint32
	DiskLength  uint32
	Length      uint32
	Type        uint8
	Compression uint8
	Name        string
}

func (l *Lump) FromBuf(enc config.Encoding, b []byte) {
	l.Offset = binary.LittleEndian.Uint32(b[0:])
	l.DiskLength = binary.LittleEndian.Uint32(b[4:])
	l.Length = binary.LittleEndian.Uint32(b[8:])
	l.Type = b[12]
	l.Compression = b[13]
	l.Name = utils.BytesToString(enc, b[16:16+NAME_SIZE])
}

func (l *Lump) Marshal(enc config.Encoding) ([]byte, error) {
	buf := make([]byte, RAW_LUMP_SIZE)
	binary.LittleEndian.PutUint32(buf[0:], l.Offset)
	binary.LittleEndian.PutUint32(buf[4:], l.DiskLength)
	binary.LittleEndian.PutUint32(buf[8:], l.Length)
	buf[12] = l.Type
	buf[13] = l.Compression
	name, err := utils.StringToBytesBuffer(enc, l.Name, NAME_SIZE-1, false)
	if err != nil {
		return nil, err
	}
	copy(buf[16:], name)
	return buf, nil
}
