package ctf

import (
	"sort"
	"strings"
)

// Scope is the chain of already-decoded ancestors visible while a definition is
// created. Variants resolve their tag and sequences their length through it.
type Scope interface {
	// Lookup returns the definition at path, searching this scope first and
	// then its parents. It returns nil when nothing matches.
	Lookup(path string) Definition

	// ScopePath returns the dotted path of this scope from the root.
	ScopePath() string
}

// localScope is implemented by definitions whose children can be addressed
// without consulting the parent chain.
type localScope interface {
	lookupLocal(path string) Definition
}

// lookupChildren searches a list of named children: exact name, the name with
// a leading underscore (CTF escapes reserved words that way), then a dotted
// descent into a child scope.
func lookupChildren(path string, child func(name string) Definition) Definition {
	if path == "" {
		return nil
	}
	if def := child(path); def != nil {
		return def
	}
	if def := child("_" + path); def != nil {
		return def
	}
	head, rest, ok := strings.Cut(path, ".")
	if !ok {
		return nil
	}
	next := child(head)
	if next == nil {
		next = child("_" + head)
	}
	if s, ok := next.(localScope); ok {
		return s.lookupLocal(rest)
	}
	return nil
}

// RootScope holds definitions decoded outside the declaration tree being read,
// such as a packet context supplied by the packet reader. It is the top of the
// scope chain.
type RootScope struct {
	path string
	defs map[string]Definition
}

// NewRootScope creates a root scope named path exposing defs by name. Names
// may themselves be dotted, e.g. "stream.packet.context".
func NewRootScope(path string, defs map[string]Definition) *RootScope {
	cp := make(map[string]Definition, len(defs))
	for k, v := range defs {
		cp[k] = v
	}
	return &RootScope{path: path, defs: cp}
}

// ScopePath implements Scope.
func (s *RootScope) ScopePath() string {
	return s.path
}

// Lookup implements Scope. Exact names win, then the longest registered name
// that prefixes path is descended into.
func (s *RootScope) Lookup(path string) Definition {
	if s == nil {
		return nil
	}
	if def, ok := s.defs[path]; ok {
		return def
	}
	names := make([]string, 0, len(s.defs))
	for name := range s.defs {
		if strings.HasPrefix(path, name+".") {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	for _, name := range names {
		ls, ok := s.defs[name].(localScope)
		if !ok {
			continue
		}
		if def := ls.lookupLocal(strings.TrimPrefix(path, name+".")); def != nil {
			return def
		}
	}
	return nil
}
