package unit

import (
	"fmt"

	"github.com/kyra-lang/nativeimage/errors"
	"github.com/kyra-lang/nativeimage/internal/binary"
)

type bodyRef struct {
	off    uint32
	length uint32
}

// LazyUnit is a partially decoded unit. Symbol declarations are resolved
// eagerly; bodies stay in the shared buffer until materialized. Use-lists
// are only available after MaterializeAll.
type LazyUnit struct {
	target Target
	syms   []*Symbol
	byName map[string]*Symbol
	bodies map[*Symbol]bodyRef
	blob   []byte

	suffix       string
	debugID      string
	materialized bool
	users        map[string][]string
}

// Decode reads the symbol table from a serialized unit, leaving bodies in
// place. The buffer must stay immutable for the lifetime of the result;
// multiple LazyUnits may decode the same buffer concurrently.
func Decode(buf []byte) (*LazyUnit, error) {
	r := binary.NewReader(buf)

	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if magic != Magic {
		return nil, errors.InvalidData(errors.PhaseDeserialize, []string{"header"},
			fmt.Sprintf("bad magic %#x", magic))
	}
	version, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if version != Version {
		return nil, errors.InvalidData(errors.PhaseDeserialize, []string{"header"},
			fmt.Sprintf("unsupported format version %d", version))
	}

	lu := &LazyUnit{
		byName: make(map[string]*Symbol),
		bodies: make(map[*Symbol]bodyRef),
	}
	if lu.target.OS, err = r.ReadName(); err != nil {
		return nil, r.WrapError("target", err)
	}
	if lu.target.Arch, err = r.ReadName(); err != nil {
		return nil, r.WrapError("target", err)
	}
	format, err := r.ReadByte()
	if err != nil {
		return nil, r.WrapError("target", err)
	}
	lu.target.Format = ObjectFormat(format)

	count, err := r.ReadU32()
	if err != nil {
		return nil, r.WrapError("symbols", err)
	}
	lu.syms = make([]*Symbol, 0, count)
	for i := uint32(0); i < count; i++ {
		s := &Symbol{}
		if s.Name, err = r.ReadName(); err != nil {
			return nil, r.WrapError("symbols", err)
		}
		kind, err := r.ReadByte()
		if err != nil {
			return nil, r.WrapError("symbols", err)
		}
		if kind > byte(KindAlias) {
			return nil, errors.InvalidData(errors.PhaseDeserialize, []string{"symbols"},
				fmt.Sprintf("unknown symbol kind %d", kind))
		}
		s.Kind = Kind(kind)

		flags, err := r.ReadByte()
		if err != nil {
			return nil, r.WrapError("symbols", err)
		}
		s.Declaration = flags&flagDeclaration != 0
		if flags&flagInternal != 0 {
			s.Linkage = LinkageInternal
		}
		if flags&flagHidden != 0 {
			s.Visibility = VisibilityHidden
		}
		s.DSOLocal = flags&flagDSOLocal != 0
		s.NoPartition = flags&flagNoPartition != 0

		if s.CloneMask, err = r.ReadName(); err != nil {
			return nil, r.WrapError("symbols", err)
		}
		if s.Insts, err = r.ReadU32(); err != nil {
			return nil, r.WrapError("symbols", err)
		}
		if s.Blocks, err = r.ReadU32(); err != nil {
			return nil, r.WrapError("symbols", err)
		}
		if s.AliasTarget, err = r.ReadName(); err != nil {
			return nil, r.WrapError("symbols", err)
		}

		nrefs, err := r.ReadU32()
		if err != nil {
			return nil, r.WrapError("symbols", err)
		}
		if nrefs > 0 {
			s.Refs = make([]string, nrefs)
			for j := range s.Refs {
				if s.Refs[j], err = r.ReadName(); err != nil {
					return nil, r.WrapError("symbols", err)
				}
			}
		}

		var ref bodyRef
		if ref.off, err = r.ReadU32(); err != nil {
			return nil, r.WrapError("symbols", err)
		}
		if ref.length, err = r.ReadU32(); err != nil {
			return nil, r.WrapError("symbols", err)
		}
		if ref.length > 0 {
			lu.bodies[s] = ref
		}

		if s.Name != "" {
			if _, dup := lu.byName[s.Name]; dup {
				return nil, errors.InvalidData(errors.PhaseDeserialize, []string{"symbols"},
					fmt.Sprintf("duplicate symbol %q", s.Name))
			}
			lu.byName[s.Name] = s
		}
		lu.syms = append(lu.syms, s)
	}

	blobLen, err := r.ReadU32()
	if err != nil {
		return nil, r.WrapError("blob", err)
	}
	if lu.blob, err = r.ReadBytes(int(blobLen)); err != nil {
		return nil, r.WrapError("blob", err)
	}
	for s, ref := range lu.bodies {
		if int(ref.off)+int(ref.length) > len(lu.blob) {
			return nil, errors.InvalidData(errors.PhaseDeserialize, []string{"blob"},
				fmt.Sprintf("body of %q out of range", s.Name))
		}
	}
	return lu, nil
}

// Load eagerly decodes a serialized unit into a fully mutable Unit.
func Load(buf []byte) (*Unit, error) {
	lu, err := Decode(buf)
	if err != nil {
		return nil, err
	}
	if err := lu.MaterializeAll(); err != nil {
		return nil, err
	}
	u := New(lu.target)
	for _, s := range lu.syms {
		if err := u.Add(s); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// Platform returns the decoded target. Satisfies backend.Module.
func (lu *LazyUnit) Platform() Target {
	return lu.target
}

// Symbols returns the unit's symbols in serialized order.
func (lu *LazyUnit) Symbols() []*Symbol {
	return lu.syms
}

// Lookup returns the named symbol, or nil.
func (lu *LazyUnit) Lookup(name string) *Symbol {
	return lu.byName[name]
}

// Materialize resolves the symbol's body from the shared buffer. The body
// is a view into the buffer, not a copy.
func (lu *LazyUnit) Materialize(s *Symbol) {
	if ref, ok := lu.bodies[s]; ok && s.Body == nil {
		s.Body = lu.blob[ref.off : ref.off+ref.length : ref.off+ref.length]
	}
}

// MaterializeAll forces every remaining body and computes use-lists.
// Use-lists (Users, ReplaceAllUses) are only valid afterwards.
func (lu *LazyUnit) MaterializeAll() error {
	for _, s := range lu.syms {
		lu.Materialize(s)
	}
	lu.users = make(map[string][]string)
	for _, s := range lu.syms {
		if s.Name == "" {
			continue
		}
		for _, ref := range s.Refs {
			lu.users[ref] = append(lu.users[ref], s.Name)
		}
		if s.AliasTarget != "" {
			lu.users[s.AliasTarget] = append(lu.users[s.AliasTarget], s.Name)
		}
	}
	lu.materialized = true
	return nil
}

// Materialized reports whether use-lists are available.
func (lu *LazyUnit) Materialized() bool {
	return lu.materialized
}

// Users returns the names of every symbol that references name. Only
// valid after MaterializeAll.
func (lu *LazyUnit) Users(name string) []string {
	return lu.users[name]
}

// ReplaceAllUses rewrites every reference to old so it points at new,
// including alias targets. Only valid after MaterializeAll.
func (lu *LazyUnit) ReplaceAllUses(old, new string) error {
	if !lu.materialized {
		return errors.Invariant(errors.PhaseMaterialize,
			"use-lists unavailable: unit not fully materialized")
	}
	for _, userName := range lu.users[old] {
		user := lu.byName[userName]
		if user == nil {
			continue
		}
		for i, ref := range user.Refs {
			if ref == old {
				user.Refs[i] = new
			}
		}
		if user.AliasTarget == old {
			user.AliasTarget = new
		}
	}
	lu.users[new] = append(lu.users[new], lu.users[old]...)
	delete(lu.users, old)
	return nil
}

// DeleteBody strips a definition down to an external declaration.
func (lu *LazyUnit) DeleteBody(s *Symbol) {
	s.Body = nil
	s.Declaration = true
	delete(lu.bodies, s)
}

// Add inserts a symbol created after decoding, e.g. an alias placeholder
// or a rebuilt index table.
func (lu *LazyUnit) Add(s *Symbol) error {
	if s.Name != "" {
		if _, dup := lu.byName[s.Name]; dup {
			return errors.Invariant(errors.PhaseMaterialize, "duplicate symbol %q", s.Name)
		}
		lu.byName[s.Name] = s
	}
	lu.syms = append(lu.syms, s)
	return nil
}

// Remove deletes the named symbol.
func (lu *LazyUnit) Remove(name string) {
	s, ok := lu.byName[name]
	if !ok {
		return
	}
	delete(lu.byName, name)
	delete(lu.bodies, s)
	for i, cur := range lu.syms {
		if cur == s {
			lu.syms = append(lu.syms[:i], lu.syms[i+1:]...)
			break
		}
	}
}

// Rename gives a symbol a new name, updating the name index. Used by the
// alias swap when a placeholder takes over the deleted alias's name.
func (lu *LazyUnit) Rename(s *Symbol, name string) error {
	if _, dup := lu.byName[name]; dup {
		return errors.Invariant(errors.PhaseMaterialize, "rename target %q already exists", name)
	}
	if s.Name != "" {
		delete(lu.byName, s.Name)
	}
	s.Name = name
	if name != "" {
		lu.byName[name] = s
	}
	return nil
}

// SetSuffix stamps the per-shard suffix applied to whole-unit metadata
// that needs global uniqueness across shards.
func (lu *LazyUnit) SetSuffix(suffix string) {
	lu.suffix = suffix
}

// Suffix returns the per-shard suffix. Satisfies backend.Module.
func (lu *LazyUnit) Suffix() string {
	return lu.suffix
}

// SetDebugIdentity overrides the debug-info compilation-unit identity
// record. Linkers require it to be unique per object file or they may
// drop debug info for the file.
func (lu *LazyUnit) SetDebugIdentity(id string) {
	lu.debugID = id
}

// DebugIdentity returns the debug-info identity record.
func (lu *LazyUnit) DebugIdentity() string {
	return lu.debugID
}
