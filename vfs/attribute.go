package vfs

import (
	"fmt"
)

// Attribute is the display form of one format specific field. Value holds a
// bool, a signed or unsigned integer, a float or a string.
type Attribute struct {
	Name  string
	Value interface{}
	Hex   bool
}

func (a Attribute) String() string {
	switch v := a.Value.(type) {
	case bool:
		if v {
			return "True"
		}
		return "False"
	case float32, float64:
		return fmt.Sprintf("%.2f", v)
	case uint8, uint16, uint32, uint64, uint:
		if a.Hex {
			return fmt.Sprintf("%#.8x", v)
		}
		return fmt.Sprintf("%d", v)
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Attributes is implemented by the per format package and item attribute
// structs.
type Attributes interface {
	Fields() []Attribute
}

func FindAttribute(attrs Attributes, name string) (Attribute, bool) {
	if attrs == nil {
		return Attribute{}, false
	}
	for _, a := range attrs.Fields() {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}
