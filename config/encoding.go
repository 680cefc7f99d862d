package config

import (
	"github.com/pkg/errors"
	"golang.org/x/text/encoding/charmap"
)

const DefaultEncodingName = "Windows 1252"

// Encoding decodes the fixed-width, zero padded names stored in package
// directories.
type Encoding struct {
	cm *charmap.Charmap
}

func DefaultEncoding() Encoding {
	return Encoding{cm: charmap.Windows1252}
}

func EncodingByName(name string) (Encoding, error) {
	if name == "" {
		return DefaultEncoding(), nil
	}
	for _, enc := range charmap.All {
		if cm, ok := enc.(*charmap.Charmap); ok {
			if cm.String() == name {
				return Encoding{cm: cm}, nil
			}
		}
	}
	return Encoding{}, errors.Errorf("Failed to find encoding %q", name)
}

func ListEncodings() []string {
	list := make([]string, 0)
	for _, enc := range charmap.All {
		if cm, ok := enc.(*charmap.Charmap); ok {
			list = append(list, cm.String())
		}
	}
	return list
}

func (e Encoding) Charmap() *charmap.Charmap {
	if e.cm == nil {
		return charmap.Windows1252
	}
	return e.cm
}

func (e Encoding) String() string { return e.Charmap().String() }
