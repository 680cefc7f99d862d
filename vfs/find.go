package vfs

import (
	"strings"
)

type FindFlags uint32

const (
	FindFiles FindFlags = 1 << iota
	FindFolders
	FindNoRecurse
	FindCaseSensitive
	// FindModeString matches the whole name literally.
	FindModeString
	// FindModeSubstring matches names containing the pattern.
	FindModeSubstring

	FindDefault = FindFiles | FindFolders
)

func (f FindFlags) Has(flag FindFlags) bool { return f&flag != 0 }

// Find returns the descendants of f whose names match pattern, in traversal
// order. Without a mode flag the pattern is a wildcard ('*' and '?').
func (f *Folder) Find(pattern string, flags FindFlags) []Node {
	if !flags.Has(FindFiles) && !flags.Has(FindFolders) {
		flags |= FindFiles | FindFolders
	}
	result := make([]Node, 0)
	f.Walk(func(n Node) error {
		if n == Node(f) {
			return nil
		}
		if n.IsFolder() {
			if flags.Has(FindFolders) && MatchName(pattern, n.Name(), flags) {
				result = append(result, n)
			}
			if flags.Has(FindNoRecurse) {
				return SkipFolder
			}
		} else if flags.Has(FindFiles) && MatchName(pattern, n.Name(), flags) {
			result = append(result, n)
		}
		return nil
	})
	return result
}

func MatchName(pattern, name string, flags FindFlags) bool {
	if !flags.Has(FindCaseSensitive) {
		pattern = strings.ToLower(pattern)
		name = strings.ToLower(name)
	}
	switch {
	case flags.Has(FindModeString):
		return pattern == name
	case flags.Has(FindModeSubstring):
		return strings.Contains(name, pattern)
	default:
		return MatchWildcard(pattern, name)
	}
}

// MatchWildcard matches s against a pattern where '*' is any run of
// characters (separators included) and '?' any single character.
func MatchWildcard(pattern, s string) bool {
	p, str := []rune(pattern), []rune(s)
	pi, si := 0, 0
	star, mark := -1, 0
	for si < len(str) {
		switch {
		case pi < len(p) && (p[pi] == '?' || p[pi] == str[si]):
			pi++
			si++
		case pi < len(p) && p[pi] == '*':
			star = pi
			mark = si
			pi++
		case star >= 0:
			pi = star + 1
			mark++
			si = mark
		default:
			return false
		}
	}
	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}
