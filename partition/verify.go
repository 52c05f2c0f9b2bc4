package partition

import (
	"github.com/kyra-lang/nativeimage/errors"
	"github.com/kyra-lang/nativeimage/unit"
)

// Verify checks the partitioning invariants. It is debug-only in spirit:
// release pipelines assume a well-formed unit and skip it, tests and the
// pipeline's debug mode run it after every PartitionUnit. A failure is a
// logic defect in the partitioner, never bad user input.
//
// Checked invariants:
//   - no symbol is assigned to more than one shard
//   - declarations and non-partitionable symbols are never assigned
//   - every partitionable definition is assigned somewhere
//   - every dependency of an assigned symbol lives in the same shard
//   - every flat id in [0, nfvars) and [0, ngvars) appears in exactly
//     one shard's sub-table
func Verify(u *unit.Unit, partitions []Partition, nfvars, ngvars int) error {
	owner := make(map[string]int)
	fvarOwner := make([]int, nfvars)
	gvarOwner := make([]int, ngvars)
	for i := range fvarOwner {
		fvarOwner[i] = -1
	}
	for i := range gvarOwner {
		gvarOwner[i] = -1
	}

	for i := range partitions {
		for name := range partitions[i].Globals {
			if prev, dup := owner[name]; dup {
				return errors.Invariant(errors.PhasePartition,
					"symbol %q assigned to shards %d and %d", name, prev, i)
			}
			owner[name] = i
		}
		for name, id := range partitions[i].FVars {
			if int(id) >= nfvars {
				return errors.Invariant(errors.PhasePartition,
					"fvar id %d of %q out of range", id, name)
			}
			if prev := fvarOwner[id]; prev >= 0 {
				return errors.Invariant(errors.PhasePartition,
					"fvar %d assigned to shards %d and %d", id, prev, i)
			}
			fvarOwner[id] = i
		}
		for name, id := range partitions[i].GVars {
			if int(id) >= ngvars {
				return errors.Invariant(errors.PhasePartition,
					"gvar id %d of %q out of range", id, name)
			}
			if prev := gvarOwner[id]; prev >= 0 {
				return errors.Invariant(errors.PhasePartition,
					"gvar %d assigned to shards %d and %d", id, prev, i)
			}
			gvarOwner[id] = i
		}
	}

	for _, s := range u.Symbols() {
		shard, assigned := owner[s.Name]
		if s.Declaration {
			if assigned {
				return errors.Invariant(errors.PhasePartition,
					"declaration %q assigned to shard %d", s.Name, shard)
			}
			continue
		}
		if !CanPartition(s) {
			if assigned {
				return errors.Invariant(errors.PhasePartition,
					"non-partitionable %q assigned to shard %d", s.Name, shard)
			}
			continue
		}
		if !assigned {
			return errors.Invariant(errors.PhasePartition,
				"definition %q not assigned to any shard", s.Name)
		}
		refs := s.Refs
		if s.AliasTarget != "" {
			refs = append(refs[:len(refs):len(refs)], s.AliasTarget)
		}
		for _, ref := range refs {
			dep := u.Lookup(ref)
			if dep == nil || dep.Declaration || !CanPartition(dep) {
				continue
			}
			depShard, ok := owner[ref]
			if !ok {
				return errors.Invariant(errors.PhasePartition,
					"dependency %q of %q not assigned to any shard", ref, s.Name)
			}
			if depShard != shard {
				return errors.Invariant(errors.PhasePartition,
					"symbol %q in shard %d but its dependency %q in shard %d",
					s.Name, shard, ref, depShard)
			}
		}
	}

	for id, o := range fvarOwner {
		if o < 0 {
			return errors.Invariant(errors.PhasePartition, "fvar %d not in any shard", id)
		}
	}
	for id, o := range gvarOwner {
		if o < 0 {
			return errors.Invariant(errors.PhasePartition, "gvar %d not in any shard", id)
		}
	}
	return nil
}
