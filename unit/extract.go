package unit

import (
	"fmt"

	"github.com/kyra-lang/nativeimage/errors"
)

// Reserved symbol names understood by the pipeline and the runtime loader.
const (
	// FVarsTableName and GVarsTableName are the index-table symbols the
	// front end emits: ordered references mapping flat id -> symbol.
	FVarsTableName = "__kyra_fvars"
	GVarsTableName = "__kyra_gvars"

	// FVarIdxsName and GVarIdxsName are the per-shard flat-id arrays
	// reconstructed next to the rebuilt tables.
	FVarIdxsName = "__kyra_fvar_idxs"
	GVarIdxsName = "__kyra_gvar_idxs"

	// SyntheticPrefix names unnamed definitions before partitioning,
	// which is keyed by name. Reserved; front ends must not use it.
	SyntheticPrefix = "__kyra_anon_"
)

// ExtractIndexTables locates and removes the function and global index
// table symbols, returning flat-id maps keyed by symbol name. The tables
// are internal front-end output; any defect here is a fatal consistency
// error, not bad user input.
func ExtractIndexTables(u *Unit) (fvars, gvars map[string]uint32, err error) {
	fvars, err = extractTable(u, FVarsTableName)
	if err != nil {
		return nil, nil, err
	}
	gvars, err = extractTable(u, GVarsTableName)
	if err != nil {
		return nil, nil, err
	}
	u.Remove(FVarsTableName)
	u.Remove(GVarsTableName)
	return fvars, gvars, nil
}

func extractTable(u *Unit, table string) (map[string]uint32, error) {
	sym := u.Lookup(table)
	if sym == nil {
		return nil, errors.MissingTable(table)
	}
	if sym.Kind != KindGlobal || sym.Declaration {
		return nil, errors.MalformedTable(table, "index table must be a global definition")
	}
	out := make(map[string]uint32, len(sym.Refs))
	for i, name := range sym.Refs {
		if name == "" {
			return nil, errors.MalformedTable(table, fmt.Sprintf("entry %d is unnamed", i))
		}
		entry := u.Lookup(name)
		if entry == nil {
			return nil, errors.MalformedTable(table, fmt.Sprintf("entry %d references unknown symbol %q", i, name))
		}
		if entry.Declaration {
			return nil, errors.MalformedTable(table, fmt.Sprintf("entry %d references declaration %q", i, name))
		}
		if _, dup := out[name]; dup {
			return nil, errors.MalformedTable(table, fmt.Sprintf("duplicate entry %q", name))
		}
		out[name] = uint32(i)
	}
	return out, nil
}

// AssignSyntheticNames names every unnamed definition with the reserved
// prefix plus a monotonic counter. Partitioning is name-keyed, so this
// must run before PartitionUnit on the multi-shard path.
func AssignSyntheticNames(u *Unit) {
	counter := 0
	for _, s := range u.syms {
		if s.Name == "" && !s.Declaration {
			s.Name = fmt.Sprintf("%s%d", SyntheticPrefix, counter)
			counter++
			u.byName[s.Name] = s
		}
	}
}
