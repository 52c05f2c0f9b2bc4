package unit

import (
	"github.com/kyra-lang/nativeimage/internal/binary"
)

// Serialized unit layout, format version 1:
//
//	u32le magic, u32le version
//	target descriptor (os, arch, object format)
//	symbol table: declarations with body (offset, length) into the blob
//	body blob
//
// The encoding is one-shot and complete. Decoding is lazy: the symbol
// table is read eagerly, bodies are resolved on demand from the blob, and
// independent decoders over the same buffer share no mutable state.

const (
	// Magic identifies a serialized unit ("kyn1").
	Magic uint32 = 0x316e796b
	// Version is the current serialization format version.
	Version uint32 = 1
)

// Symbol flag bits.
const (
	flagDeclaration byte = 1 << iota
	flagInternal
	flagHidden
	flagDSOLocal
	flagNoPartition
)

// Platform returns the unit's target. Satisfies backend.Module.
func (u *Unit) Platform() Target {
	return u.Target
}

// Suffix returns the per-shard name suffix; empty for an unsharded unit.
// Satisfies backend.Module.
func (u *Unit) Suffix() string {
	return ""
}

// Encode serializes the complete unit into one immutable buffer that any
// number of workers can decode concurrently.
func Encode(u *Unit) []byte {
	blob := binary.NewWriter()
	type bodyRef struct{ off, length uint32 }
	refs := make([]bodyRef, len(u.syms))
	for i, s := range u.syms {
		if len(s.Body) == 0 {
			continue
		}
		refs[i] = bodyRef{off: uint32(blob.Len()), length: uint32(len(s.Body))}
		blob.WriteBytes(s.Body)
	}

	w := binary.NewWriter()
	w.WriteU32LE(Magic)
	w.WriteU32LE(Version)

	w.WriteName(u.Target.OS)
	w.WriteName(u.Target.Arch)
	w.Byte(byte(u.Target.Format))

	w.WriteU32(uint32(len(u.syms)))
	for i, s := range u.syms {
		w.WriteName(s.Name)
		w.Byte(byte(s.Kind))

		var flags byte
		if s.Declaration {
			flags |= flagDeclaration
		}
		if s.Linkage == LinkageInternal {
			flags |= flagInternal
		}
		if s.Visibility == VisibilityHidden {
			flags |= flagHidden
		}
		if s.DSOLocal {
			flags |= flagDSOLocal
		}
		if s.NoPartition {
			flags |= flagNoPartition
		}
		w.Byte(flags)

		w.WriteName(s.CloneMask)
		w.WriteU32(s.Insts)
		w.WriteU32(s.Blocks)
		w.WriteName(s.AliasTarget)

		w.WriteU32(uint32(len(s.Refs)))
		for _, ref := range s.Refs {
			w.WriteName(ref)
		}

		w.WriteU32(refs[i].off)
		w.WriteU32(refs[i].length)
	}

	w.WriteU32(uint32(blob.Len()))
	w.WriteBytes(blob.Bytes())
	return w.Bytes()
}
