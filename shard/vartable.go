package shard

import (
	"sort"

	"github.com/kyra-lang/nativeimage/errors"
	"github.com/kyra-lang/nativeimage/internal/binary"
	"github.com/kyra-lang/nativeimage/partition"
	"github.com/kyra-lang/nativeimage/unit"
)

// BuildVarTables reconstructs the shard's function and global index
// tables from the partition's local sub-tables. Entries are sorted by
// flat id and re-emitted as the shard's own table symbols, together with
// the id arrays that let the loader compute (shard, local offset) for any
// flat id from per-shard tables alone. The original flat ids are
// reproduced exactly.
func BuildVarTables(lu *unit.LazyUnit, p *partition.Partition) error {
	fvarNames, fvarIdxs, err := sortedVars(lu, p.FVars, unit.KindFunction)
	if err != nil {
		return err
	}
	gvarNames, gvarIdxs, err := sortedVars(lu, p.GVars, unit.KindGlobal)
	if err != nil {
		return err
	}

	if err := emitTable(lu, unit.FVarsTableName, fvarNames); err != nil {
		return err
	}
	if err := emitTable(lu, unit.GVarsTableName, gvarNames); err != nil {
		return err
	}
	if err := emitIdxs(lu, unit.FVarIdxsName, fvarIdxs); err != nil {
		return err
	}
	return emitIdxs(lu, unit.GVarIdxsName, gvarIdxs)
}

func sortedVars(lu *unit.LazyUnit, vars map[string]uint32, want unit.Kind) ([]string, []uint32, error) {
	type pair struct {
		id   uint32
		name string
	}
	pairs := make([]pair, 0, len(vars))
	for name, id := range vars {
		s := lu.Lookup(name)
		if s == nil || s.Declaration {
			return nil, nil, errors.New(errors.PhaseTables, errors.KindInternalInvariant).
				Symbol(name).
				Detail("indexed %s is missing or stripped", want).
				Build()
		}
		pairs = append(pairs, pair{id: id, name: name})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].id < pairs[j].id })

	names := make([]string, len(pairs))
	idxs := make([]uint32, len(pairs))
	for i, pr := range pairs {
		names[i] = pr.name
		idxs[i] = pr.id
	}
	return names, idxs, nil
}

func emitTable(lu *unit.LazyUnit, name string, entries []string) error {
	return lu.Add(&unit.Symbol{
		Name:       name,
		Kind:       unit.KindGlobal,
		Visibility: unit.VisibilityHidden,
		DSOLocal:   true,
		Refs:       entries,
		Body:       encodeIdxs(uint32(len(entries)), nil),
	})
}

func emitIdxs(lu *unit.LazyUnit, name string, idxs []uint32) error {
	return lu.Add(&unit.Symbol{
		Name:       name,
		Kind:       unit.KindGlobal,
		Visibility: unit.VisibilityHidden,
		DSOLocal:   true,
		Body:       encodeIdxs(uint32(len(idxs)), idxs),
	})
}

// encodeIdxs lays out a u32le count followed by u32le elements, the flat
// array form the loader consumes.
func encodeIdxs(count uint32, idxs []uint32) []byte {
	w := binary.NewWriter()
	w.WriteU32LE(count)
	for _, id := range idxs {
		w.WriteU32LE(id)
	}
	return w.Bytes()
}
