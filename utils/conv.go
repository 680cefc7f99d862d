package utils

import (
	"bytes"

	"github.com/pkg/errors"
	"golang.org/x/text/transform"

	"github.com/mogaika/hlpack/config"
)

func AlignUp(size, align int64) int64 {
	return (size + align - 1) / align * align
}

func GetRequiredBlocksCount(size, blockSize int64) int64 {
	return (size + blockSize - 1) / blockSize
}

// BytesToString decodes a zero padded fixed-width name.
func BytesToString(enc config.Encoding, bs []byte) string {
	n := bytes.IndexByte(bs, 0)
	if n < 0 {
		n = len(bs)
	}

	s, _, err := transform.Bytes(enc.Charmap().NewDecoder(), bs[0:n])
	if err != nil {
		// single byte charmaps decode every byte
		return string(bs[0:n])
	}
	return string(s)
}

// StringToBytesBuffer encodes s into a zero padded buffer of bufSize bytes.
func StringToBytesBuffer(enc config.Encoding, s string, bufSize int, nilTerminate bool) ([]byte, error) {
	bs, err := StringToBytes(enc, s, nilTerminate)
	if err != nil {
		return nil, err
	}
	if len(bs) > bufSize {
		return nil, errors.Errorf("name %q does not fit in %d bytes", s, bufSize)
	}
	r := make([]byte, bufSize)
	copy(r, bs)
	return r, nil
}

func StringToBytes(enc config.Encoding, s string, nilTerminate bool) ([]byte, error) {
	bs, _, err := transform.Bytes(enc.Charmap().NewEncoder(), []byte(s))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot encode %q as %v", s, enc)
	}
	if nilTerminate {
		bs = append(bs, 0)
	}
	return bs, nil
}
