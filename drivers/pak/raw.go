package pak

import (
	"encoding/binary"

	"github.com/mogaika/hlpack/config"
	"github.com/mogaika/hlpack/utils"
)

const (
	MAGIC           = "PACK"
	RAW_HEADER_SIZE = 12
	RAW_ENTRY_SIZE  = 64
	NAME_SIZE       = 56
)

type Header struct {
	DirectoryOffset uint32
	DirectoryLength uint32
}

func (h *Header) FromBuf(b []byte) {
	h.DirectoryOffset = binary.LittleEndian.Uint32(b[4:])
	h.DirectoryLength = binary.LittleEndian.Uint32(b[8:])
}

func (h *Header) Marshal() []byte {
	buf := make([]byte, RAW_HEADER_SIZE)
	copy(buf, MAGIC)
	binary.LittleEndian.PutUint32(buf[4:], h.DirectoryOffset)
	binary.LittleEndian.PutUint32(buf[8:], h.DirectoryLength)
	return buf
}

type Entry struct {
	Name   string
	Offset uint32
	Length uint32
}

func (e *Entry) FromBuf(enc config.Encoding, b []byte) {
	e.Name = utils.BytesToString(enc, b[:NAME_SIZE])
	e.Offset = binary.LittleEndian.Uint32(b[NAME_SIZE:])
	e.Length = binary.LittleEndian.Uint32(b[NAME_SIZE+4:])
}

func (e *Entry) Marshal(enc config.Encoding) ([]byte, error) {
	buf := make([]byte, RAW_ENTRY_SIZE)
	// the last byte stays zero as the terminator
	name, err := utils.StringToBytesBuffer(enc, e.Name, NAME_SIZE-1, false)
	if err != nil {
		return nil, err
	}
	copy(buf, name)
	binary.LittleEndian.PutUint32(buf[NAME_SIZE:], e.Offset)
	binary.LittleEndian.PutUint32(buf[NAME_SIZE+4:], e.Length)
	return buf, nil
}
