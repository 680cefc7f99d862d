package pack

import (
	"strings"
)

type Type int

const (
	TypeUnknown Type = iota
	TypeGCF
	TypeNCF
	TypeVPK
	TypeWAD
	TypePAK
	TypeZIP
	TypeVBSP
)

var typeNames = map[Type]string{
	TypeGCF:  "GCF",
	TypeNCF:  "NCF",
	TypeVPK:  "VPK",
	TypeWAD:  "WAD",
	TypePAK:  "PAK",
	TypeZIP:  "ZIP",
	TypeVBSP: "VBSP",
}

var typeDescriptions = map[Type]string{
	TypeGCF:  "Half-Life Game Cache File",
	TypeNCF:  "Half-Life No Cache File",
	TypeVPK:  "Half-Life Valve Package",
	TypeWAD:  "Half-Life Texture Package",
	TypePAK:  "Half-Life Package",
	TypeZIP:  "Zip Package",
	TypeVBSP: "Half-Life 2 Level",
}

var typeExtensions = map[Type]string{
	TypeGCF:  ".gcf",
	TypeNCF:  ".ncf",
	TypeVPK:  ".vpk",
	TypeWAD:  ".wad",
	TypePAK:  ".pak",
	TypeZIP:  ".zip",
	TypeVBSP: ".bsp",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "Unknown"
}

func (t Type) Description() string { return typeDescriptions[t] }
func (t Type) Extension() string   { return typeExtensions[t] }

// TypeByName accepts a type name or an extension, case insensitively.
func TypeByName(name string) Type {
	name = strings.ToLower(strings.TrimPrefix(name, "."))
	for t, n := range typeNames {
		if strings.ToLower(n) == name || strings.TrimPrefix(typeExtensions[t], ".") == name {
			return t
		}
	}
	return TypeUnknown
}
