package vfs

import (
	"hash"
	"hash/adler32"
	"hash/crc32"
)

type ChecksumKind int

const (
	// ChecksumCRC32 is one IEEE CRC32 over the whole decoded file.
	ChecksumCRC32 ChecksumKind = iota
	// ChecksumChunked is one value per ChunkSize bytes, each the adler32 of
	// the chunk xor its crc32.
	ChecksumChunked
)

const DefaultChunkSize = 0x8000

type Checksum struct {
	Kind      ChecksumKind
	CRC       uint32
	ChunkSize int64
	Chunks    []uint32
}

func NewCRC32Checksum(crc uint32) *Checksum {
	return &Checksum{Kind: ChecksumCRC32, CRC: crc}
}

func NewChunkedChecksum(chunkSize int64, chunks []uint32) *Checksum {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Checksum{Kind: ChecksumChunked, ChunkSize: chunkSize, Chunks: chunks}
}

func ChunkChecksum(b []byte) uint32 {
	return adler32.Checksum(b) ^ crc32.ChecksumIEEE(b)
}

// ComputeChunked splits data into chunkSize pieces and checksums each.
func ComputeChunked(data []byte, chunkSize int64) []uint32 {
	result := make([]uint32, 0, (int64(len(data))+chunkSize-1)/chunkSize)
	for start := int64(0); start < int64(len(data)); start += chunkSize {
		end := start + chunkSize
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		result = append(result, ChunkChecksum(data[start:end]))
	}
	return result
}

func (c *Checksum) Verify(data []byte) bool {
	v := c.NewVerifier()
	v.Write(data)
	return v.Valid()
}

// Verifier checks a checksum over data written to it in order.
type Verifier struct {
	c      *Checksum
	crc    hash.Hash32
	chunk  []byte
	index  int
	failed bool
}

func (c *Checksum) NewVerifier() *Verifier {
	v := &Verifier{c: c}
	if c.Kind == ChecksumCRC32 {
		v.crc = crc32.NewIEEE()
	} else {
		v.chunk = make([]byte, 0, c.ChunkSize)
	}
	return v
}

func (v *Verifier) Write(p []byte) (int, error) {
	if v.crc != nil {
		return v.crc.Write(p)
	}
	n := len(p)
	for len(p) > 0 {
		take := int(v.c.ChunkSize) - len(v.chunk)
		if take > len(p) {
			take = len(p)
		}
		v.chunk = append(v.chunk, p[:take]...)
		p = p[take:]
		if int64(len(v.chunk)) == v.c.ChunkSize {
			v.flush()
		}
	}
	return n, nil
}

func (v *Verifier) flush() {
	if v.index >= len(v.c.Chunks) || v.c.Chunks[v.index] != ChunkChecksum(v.chunk) {
		v.failed = true
	}
	v.index++
	v.chunk = v.chunk[:0]
}

// Valid finishes the check. The verifier must not be written to afterwards.
func (v *Verifier) Valid() bool {
	if v.crc != nil {
		return v.crc.Sum32() == v.c.CRC
	}
	if len(v.chunk) != 0 {
		v.flush()
	}
	return !v.failed && v.index == len(v.c.Chunks)
}
