package unit

import (
	"github.com/kyra-lang/nativeimage/errors"
)

// Kind discriminates the closed set of symbol kinds.
type Kind uint8

const (
	KindFunction Kind = iota
	KindGlobal
	KindAlias
)

func (k Kind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindGlobal:
		return "global"
	case KindAlias:
		return "alias"
	}
	return "unknown"
}

// Linkage controls whether a symbol participates in cross-shard resolution.
type Linkage uint8

const (
	LinkageExternal Linkage = iota
	LinkageInternal
)

// Visibility mirrors object-format symbol visibility.
type Visibility uint8

const (
	VisibilityDefault Visibility = iota
	VisibilityHidden
)

// Symbol is a named function, global variable, or alias within a unit.
type Symbol struct {
	Name        string
	Kind        Kind
	Declaration bool
	Linkage     Linkage
	Visibility  Visibility
	DSOLocal    bool

	// NoPartition marks symbols that must stay local to every shard,
	// e.g. forced-inline functions. They are never assigned to a shard
	// and never referenced across shards.
	NoPartition bool

	// CloneMask is the hex-encoded variant bitmask attached by the
	// multiversioning pass. Empty means no clones.
	CloneMask string

	// Insts and Blocks are the front end's size hints for functions.
	Insts  uint32
	Blocks uint32

	// AliasTarget names the aliasee. Set only when Kind == KindAlias;
	// aliases are always definitions.
	AliasTarget string

	// Refs lists the names of symbols this symbol uses.
	Refs []string

	// Body is the opaque encoded definition. Nil for declarations, and
	// nil in lazily decoded units until the body is materialized.
	Body []byte
}

// IsDefinition reports whether the symbol carries a definition.
func (s *Symbol) IsDefinition() bool {
	return !s.Declaration
}

// Unit is a mutable compilation unit: an ordered collection of symbols
// plus the target platform descriptor. The front end creates it; the
// pipeline consumes and empties it.
type Unit struct {
	Target  Target
	syms    []*Symbol
	byName  map[string]*Symbol
	removed int
}

// New creates an empty unit for the given target.
func New(target Target) *Unit {
	return &Unit{
		Target: target,
		byName: make(map[string]*Symbol),
	}
}

// Add appends a symbol to the unit. Named symbols must be unique; unnamed
// definitions are allowed until AssignSyntheticNames runs.
func (u *Unit) Add(s *Symbol) error {
	if s.Name != "" {
		if _, dup := u.byName[s.Name]; dup {
			return errors.New(errors.PhaseConfig, errors.KindInvalidData).
				Symbol(s.Name).
				Detail("duplicate symbol name").
				Build()
		}
		u.byName[s.Name] = s
	}
	u.syms = append(u.syms, s)
	return nil
}

// Lookup returns the named symbol, or nil.
func (u *Unit) Lookup(name string) *Symbol {
	return u.byName[name]
}

// Remove deletes the named symbol from the unit.
func (u *Unit) Remove(name string) {
	s, ok := u.byName[name]
	if !ok {
		return
	}
	delete(u.byName, name)
	for i, cur := range u.syms {
		if cur == s {
			u.syms = append(u.syms[:i], u.syms[i+1:]...)
			u.removed++
			break
		}
	}
}

// Symbols returns the unit's symbols in insertion order. The returned
// slice is shared; callers must not reorder it.
func (u *Unit) Symbols() []*Symbol {
	return u.syms
}

// Len returns the number of symbols in the unit.
func (u *Unit) Len() int {
	return len(u.syms)
}

// Release drops the unit's contents. Called after serialization so peak
// memory is bounded before the shard workers fan out.
func (u *Unit) Release() {
	u.syms = nil
	u.byName = nil
}
