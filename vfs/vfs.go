// Package vfs is the in-memory directory tree of a package: folders own an
// insertion-ordered list of uniquely named children, files own their size,
// locator (fragments), compression method, checksum and attributes.
package vfs

import (
	"strings"
)

const Separator = "/"

// Node is either a *Folder or a *File.
type Node interface {
	Name() string
	Parent() *Folder
	IsFolder() bool
	ID() uint32
}

// Path returns the slash separated path of n relative to its root. The root
// itself has an empty path.
func Path(n Node) string {
	parts := make([]string, 0, 8)
	for cur := n; cur != nil && cur.Parent() != nil; cur = cur.Parent() {
		parts = append(parts, cur.Name())
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, Separator)
}

// RelPath returns the path of n relative to base. base must be an ancestor of
// n (or n itself, giving "").
func RelPath(base *Folder, n Node) string {
	parts := make([]string, 0, 8)
	for cur := n; cur != nil && cur != Node(base); cur = cur.Parent() {
		parts = append(parts, cur.Name())
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, Separator)
}

// SplitPath splits a package path on '/' and '\', dropping empty elements.
func SplitPath(p string) []string {
	return strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' })
}
