package shard

import (
	"fmt"

	"github.com/kyra-lang/nativeimage/errors"
	"github.com/kyra-lang/nativeimage/partition"
	"github.com/kyra-lang/nativeimage/unit"
)

// swapPrefix names alias placeholders during the two-phase swap. The
// final rename removes it again, so it never survives materialization.
const swapPrefix = "__kyra_swap_"

// placeholderBody is the stub definition given to alias placeholders so
// an alias never points at a bare declaration mid-swap. A function
// placeholder traps if ever reached; a global placeholder is zeroed.
var placeholderBody = []byte{0}

// MaterializePreserved turns a freshly decoded shard copy into the
// partition's view of the unit: preserved symbols keep their definitions,
// everything else is stripped to an external declaration with hidden
// visibility and platform-local binding. Non-partitionable symbols keep
// their bodies but become internal, so they are duplicated into every
// shard that needs them instead of crossing shard boundaries.
//
// The unit is fully materialized on return; use-lists are valid.
func MaterializePreserved(lu *unit.LazyUnit, p *partition.Partition) error {
	preserve := make(map[*unit.Symbol]bool, len(p.Globals))
	for name := range p.Globals {
		s := lu.Lookup(name)
		if s == nil || s.Declaration {
			return errors.New(errors.PhaseMaterialize, errors.KindInternalInvariant).
				Symbol(name).
				Detail("preserved symbol is missing or a declaration").
				Build()
		}
		preserve[s] = true
	}

	type swap struct {
		alias       *unit.Symbol
		placeholder *unit.Symbol
	}
	var swaps []swap
	swapCounter := 0

	for _, s := range lu.Symbols() {
		if s.Declaration || preserve[s] {
			continue
		}
		if !partition.CanPartition(s) {
			// Kept locally in every shard, never exported.
			s.Linkage = unit.LinkageInternal
			s.Visibility = unit.VisibilityDefault
			continue
		}
		if s.Linkage == unit.LinkageInternal {
			continue
		}
		switch s.Kind {
		case unit.KindFunction, unit.KindGlobal:
			lu.DeleteBody(s)
			s.Linkage = unit.LinkageExternal
			s.Visibility = unit.VisibilityHidden
			s.DSOLocal = true
		case unit.KindAlias:
			// An alias cannot point at a bare declaration, so it cannot
			// simply be stripped like a function. Point it at a fresh
			// placeholder definition of the same shape first; the swap
			// completes after materialization below.
			target, err := finalAliasee(lu, s)
			if err != nil {
				return err
			}
			ph := &unit.Symbol{
				Name: fmt.Sprintf("%s%d", swapPrefix, swapCounter),
				Kind: target.Kind,
				Body: placeholderBody,
			}
			swapCounter++
			if err := lu.Add(ph); err != nil {
				return err
			}
			s.AliasTarget = ph.Name
			swaps = append(swaps, swap{alias: s, placeholder: ph})
		}
	}

	// Use-lists only exist after full materialization, and the alias
	// swap below needs them.
	if err := lu.MaterializeAll(); err != nil {
		return err
	}

	for _, sw := range swaps {
		name := sw.alias.Name
		users := lu.Users(name)
		lu.Remove(name)
		// References are name-keyed, so the placeholder taking over the
		// alias's name redirects every use in one step.
		if err := lu.Rename(sw.placeholder, name); err != nil {
			return err
		}
		for _, userName := range users {
			user := lu.Lookup(userName)
			if user == nil {
				continue
			}
			if !refersTo(user, name) {
				return errors.New(errors.PhaseMaterialize, errors.KindInternalInvariant).
					Symbol(userName).
					Detail("user of deleted alias %q no longer resolves to its replacement", name).
					Build()
			}
		}
		// Restore the placeholder to a plain declaration.
		lu.DeleteBody(sw.placeholder)
		sw.placeholder.Linkage = unit.LinkageExternal
		sw.placeholder.Visibility = unit.VisibilityHidden
		sw.placeholder.DSOLocal = true
	}

	return nil
}

// finalAliasee resolves an alias chain to its first non-alias symbol.
// Chains are resolved up front so the placeholder always mirrors the
// shape of a real definition.
func finalAliasee(lu *unit.LazyUnit, alias *unit.Symbol) (*unit.Symbol, error) {
	seen := make(map[string]bool)
	cur := alias
	for cur.Kind == unit.KindAlias {
		if seen[cur.Name] {
			return nil, errors.New(errors.PhaseMaterialize, errors.KindInternalInvariant).
				Symbol(alias.Name).
				Detail("alias cycle through %q", cur.Name).
				Build()
		}
		seen[cur.Name] = true
		next := lu.Lookup(cur.AliasTarget)
		if next == nil {
			return nil, errors.New(errors.PhaseMaterialize, errors.KindInternalInvariant).
				Symbol(cur.Name).
				Detail("alias targets unknown symbol %q", cur.AliasTarget).
				Build()
		}
		cur = next
	}
	return cur, nil
}

func refersTo(s *unit.Symbol, name string) bool {
	if s.AliasTarget == name {
		return true
	}
	for _, ref := range s.Refs {
		if ref == name {
			return true
		}
	}
	return false
}

// StampSuffix marks the shard with its index: whole-unit metadata that
// must be globally unique across shards gets the "_<i>" suffix, and the
// debug-info compilation-unit identity becomes "kyra#<i>" so linkers
// do not coalesce per-object debug records.
func StampSuffix(lu *unit.LazyUnit, i int) {
	lu.SetSuffix(fmt.Sprintf("_%d", i))
	lu.SetDebugIdentity(fmt.Sprintf("kyra#%d", i))
}
