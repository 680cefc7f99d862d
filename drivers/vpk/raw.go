package vpk

import (
	"encoding/binary"
)

const (
	SIGNATURE          = 0x55aa1234
	RAW_HEADER_V1_SIZE = 12
	RAW_HEADER_V2_SIZE = 28
	RAW_ENTRY_SIZE     = 18

	// DIR_ARCHIVE_INDEX marks data stored in the directory file after the
	// tree.
	DIR_ARCHIVE_INDEX = 0x7fff
	TERMINATOR        = 0xffff

	// NO_NAME stands for an empty extension or path in the tree.
	NO_NAME = " "
)

type Header struct {
	Signature uint32
	Version   uint32
	TreeSize  uint32

	// version 2
	FileDataSectionSize   uint32
	ArchiveMD5SectionSize uint32
	OtherMD5SectionSize   uint32
	SignatureSectionSize  uint32
}

func (h *Header) Size() int64 {
	switch h.Version {
	case 0:
		return 0
	case 1:
		return RAW_HEADER_V1_SIZE
	default:
		return RAW_HEADER_V2_SIZE
	}
}

func (h *Header) FromBuf(b []byte) {
	h.Signature = binary.LittleEndian.Uint32(b[0:])
	h.Version = binary.LittleEndian.Uint32(b[4:])
	h.TreeSize = binary.LittleEndian.Uint32(b[8:])
	if h.Version >= 2 && len(b) >= RAW_HEADER_V2_SIZE {
		h.FileDataSectionSize = binary.LittleEndian.Uint32(b[12:])
		h.ArchiveMD5SectionSize = binary.LittleEndian.Uint32(b[16:])
		h.OtherMD5SectionSize = binary.LittleEndian.Uint32(b[20:])
		h.SignatureSectionSize = binary.LittleEndian.Uint32(b[24:])
	}
}

func (h *Header) Marshal() []byte {
	buf := make([]byte, h.Size())
	if h.Version == 0 {
		return buf
	}
	binary.LittleEndian.PutUint32(buf[0:], SIGNATURE)
	binary.LittleEndian.PutUint32(buf[4:], h.Version)
	binary.LittleEndian.PutUint32(buf[8:], h.TreeSize)
	if h.Version >= 2 {
		binary.LittleEndian.PutUint32(buf[12:], h.FileDataSectionSize)
		binary.LittleEndian.PutUint32(buf[16:], h.ArchiveMD5SectionSize)
		binary.LittleEndian.PutUint32(buf[20:], h.OtherMD5SectionSize)
		binary.LittleEndian.PutUint32(buf[24:], h.SignatureSectionSize)
	}
	return buf
}

type Entry struct {
	CRC          uint32
	PreloadBytes uint16
	ArchiveIndex uint16
	EntryOffset  uint32
	EntryLength  uint32
	Terminator   uint16
}

func (e *Entry) FromBuf(b []byte) {
	e.CRC = binary.LittleEndian.Uint32(b[0:])
	e.PreloadBytes = binary.LittleEndian.Uint16(b[4:])
	e.ArchiveIndex = binary.LittleEndian.Uint16(b[6:])
	e.EntryOffset = binary.LittleEndian.Uint32(b[8:])
	e.EntryLength = binary.LittleEndian.Uint32(b[12:])
	e.Terminator = binary.LittleEndian.Uint16(b[16:])
}

func (e *Entry) Marshal() []byte {
	buf := make([]byte, RAW_ENTRY_SIZE)
	binary.LittleEndian.PutUint32(buf[0:], e.CRC)
	binary.LittleEndian.PutUint16(buf[4:], e.PreloadBytes)
	binary.LittleEndian.PutUint16(buf[6:], e.ArchiveIndex)
	binary.LittleEndian.PutUint32(buf[8:], e.EntryOffset)
	binary.LittleEndian.PutUint32(buf[12:], e.EntryLength)
	binary.LittleEndian.PutUint16(buf[16:], TERMINATOR)
	return buf
}
