package wasmbe

import (
	"context"
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero"

	"github.com/kyra-lang/nativeimage/backend"
	"github.com/kyra-lang/nativeimage/errors"
	"github.com/kyra-lang/nativeimage/internal/binary"
	"github.com/kyra-lang/nativeimage/unit"
)

// Compiler is the reference backend: it lowers a shard to a core
// WebAssembly module and compiles it through wazero. Functions become
// exported stubs, globals become wasm globals, and preserved aliases
// re-export their target's index. The wasm binary doubles as a portable
// object format for loaders that embed a wasm engine.
//
// Safe for concurrent Compile calls; wazero's runtime is shared across
// shard workers.
type Compiler struct {
	rt wazero.Runtime
}

// New creates a wasm reference compiler backed by a shared wazero
// runtime with an in-memory compilation cache.
func New(ctx context.Context) *Compiler {
	cfg := wazero.NewRuntimeConfig().WithCompilationCache(wazero.NewCompilationCache())
	return &Compiler{rt: wazero.NewRuntimeWithConfig(ctx, cfg)}
}

// Close releases the underlying wazero runtime.
func (c *Compiler) Close(ctx context.Context) error {
	return c.rt.Close(ctx)
}

// Compile implements backend.Compiler.
func (c *Compiler) Compile(ctx context.Context, mod backend.Module, req backend.Request) (backend.Outputs, error) {
	var out backend.Outputs
	if !req.Any() {
		return out, errors.Invariant(errors.PhaseOptimize, "no output requested")
	}

	if req.Unopt {
		out.Unopt = encodeListing(mod, false)
	}
	if !req.Opt && !req.Obj && !req.Asm {
		return out, nil
	}

	wasmBytes := lowerToWasm(mod)
	if req.Opt {
		out.Opt = wasmBytes
	}
	if req.Obj {
		compiled, err := c.rt.CompileModule(ctx, wasmBytes)
		if err != nil {
			return out, errors.Wrap(errors.PhaseEmit, errors.KindInvalidData, err,
				"wazero rejected lowered shard")
		}
		defer compiled.Close(ctx)
		out.Obj = wasmBytes
	}
	if req.Asm {
		out.Asm = encodeListing(mod, true)
	}
	return out, nil
}

// Core wasm section ids and shapes used by the lowering.
const (
	wasmMagic   uint32 = 0x6d736100 // "\0asm"
	wasmVersion uint32 = 1

	secType     byte = 1
	secFunction byte = 3
	secGlobal   byte = 6
	secExport   byte = 7
	secCode     byte = 10

	exportFunc   byte = 0
	exportGlobal byte = 3

	valI32        byte = 0x7f
	opUnreachable byte = 0x00
	opI32Const    byte = 0x41
	opEnd         byte = 0x0b
)

// lowerToWasm emits a valid core wasm module for the shard's preserved
// definitions. Stripped declarations do not appear: they resolve in
// other shards at link time, not here.
func lowerToWasm(mod backend.Module) []byte {
	suffix := mod.Suffix()

	var funcs []*unit.Symbol
	var globals []*unit.Symbol
	var aliases []*unit.Symbol
	funcIdx := make(map[string]uint32)
	globalIdx := make(map[string]uint32)
	for _, s := range mod.Symbols() {
		if s.Declaration || s.Name == "" {
			continue
		}
		switch s.Kind {
		case unit.KindFunction:
			funcIdx[s.Name] = uint32(len(funcs))
			funcs = append(funcs, s)
		case unit.KindGlobal:
			globalIdx[s.Name] = uint32(len(globals))
			globals = append(globals, s)
		case unit.KindAlias:
			aliases = append(aliases, s)
		}
	}

	w := binary.NewWriter()
	w.WriteU32LE(wasmMagic)
	w.WriteU32LE(wasmVersion)

	// Single () -> () type shared by every stub.
	sec := binary.NewWriter()
	sec.WriteU32(1)
	sec.Byte(0x60)
	sec.WriteU32(0)
	sec.WriteU32(0)
	writeSection(w, secType, sec.Bytes())

	if len(funcs) > 0 {
		sec = binary.NewWriter()
		sec.WriteU32(uint32(len(funcs)))
		for range funcs {
			sec.WriteU32(0)
		}
		writeSection(w, secFunction, sec.Bytes())
	}

	if len(globals) > 0 {
		sec = binary.NewWriter()
		sec.WriteU32(uint32(len(globals)))
		for range globals {
			sec.Byte(valI32)
			sec.Byte(0) // immutable
			sec.Byte(opI32Const)
			sec.WriteU32(0)
			sec.Byte(opEnd)
		}
		writeSection(w, secGlobal, sec.Bytes())
	}

	sec = binary.NewWriter()
	exports := 0
	exp := binary.NewWriter()
	for _, s := range funcs {
		exp.WriteName(s.Name + suffix)
		exp.Byte(exportFunc)
		exp.WriteU32(funcIdx[s.Name])
		exports++
	}
	for _, s := range globals {
		exp.WriteName(s.Name + suffix)
		exp.Byte(exportGlobal)
		exp.WriteU32(globalIdx[s.Name])
		exports++
	}
	for _, s := range aliases {
		// A preserved alias re-exports its target's index when the
		// target lowered into this shard.
		if idx, ok := funcIdx[s.AliasTarget]; ok {
			exp.WriteName(s.Name + suffix)
			exp.Byte(exportFunc)
			exp.WriteU32(idx)
			exports++
		} else if idx, ok := globalIdx[s.AliasTarget]; ok {
			exp.WriteName(s.Name + suffix)
			exp.Byte(exportGlobal)
			exp.WriteU32(idx)
			exports++
		}
	}
	if exports > 0 {
		sec.WriteU32(uint32(exports))
		sec.WriteBytes(exp.Bytes())
		writeSection(w, secExport, sec.Bytes())
	}

	if len(funcs) > 0 {
		sec = binary.NewWriter()
		sec.WriteU32(uint32(len(funcs)))
		for range funcs {
			body := binary.NewWriter()
			body.WriteU32(0) // no locals
			body.Byte(opUnreachable)
			body.Byte(opEnd)
			sec.WriteU32(uint32(body.Len()))
			sec.WriteBytes(body.Bytes())
		}
		writeSection(w, secCode, sec.Bytes())
	}

	return w.Bytes()
}

func writeSection(w *binary.Writer, id byte, contents []byte) {
	w.Byte(id)
	w.WriteU32(uint32(len(contents)))
	w.WriteBytes(contents)
}

// encodeListing renders a stable textual listing of the shard, used for
// the pre-optimization form (compact) and the assembly output (full).
func encodeListing(mod backend.Module, full bool) []byte {
	var b strings.Builder
	t := mod.Platform()
	fmt.Fprintf(&b, "; target %s/%s (%s)%s\n", t.OS, t.Arch, t.Format, mod.Suffix())
	for _, s := range mod.Symbols() {
		if s.Name == "" {
			continue
		}
		state := "define"
		if s.Declaration {
			state = "declare"
		}
		fmt.Fprintf(&b, "%s %s %s", state, s.Kind, s.Name)
		if s.AliasTarget != "" {
			fmt.Fprintf(&b, " = %s", s.AliasTarget)
		}
		if full && !s.Declaration && s.Kind == unit.KindFunction {
			fmt.Fprintf(&b, " ; insts=%d blocks=%d weight=%d", s.Insts, s.Blocks, unit.SymbolWeight(s))
		}
		b.WriteByte('\n')
	}
	return []byte(b.String())
}
