package unit

import "math/bits"

// Weight computation
//
// Splitting work evenly across shards requires an estimate of how
// expensive each symbol is to compile. For functions the estimate is
// instruction count plus basic-block count (blocks add complexity beyond
// the plain instruction sum), multiplied by the number of target clones
// the multiversioning pass will emit. Plain globals cost a constant 1.

// CloneCount returns the number of copies the backend will emit for a
// symbol: one per set bit in the hex-encoded variant bitmask, plus the
// original. An empty mask means a single copy.
func CloneCount(mask string) uint64 {
	var clones uint64
	for i := 0; i < len(mask); i++ {
		clones += uint64(bits.OnesCount8(hexNibble(mask[i])))
	}
	return clones + 1
}

func hexNibble(c byte) uint8 {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}

// SymbolWeight estimates the compilation cost of a single definition.
// Declarations weigh nothing.
func SymbolWeight(s *Symbol) uint64 {
	if s.Declaration {
		return 0
	}
	if s.Kind != KindFunction {
		return 1
	}
	w := 1 + uint64(s.Insts) + uint64(s.Blocks)
	return w * CloneCount(s.CloneMask)
}

// Stats summarizes a unit for the thread-count heuristic and debug logs.
type Stats struct {
	Globals uint64 // all definitions, of any kind
	Funcs   uint64
	Blocks  uint64
	Insts   uint64
	Clones  uint64
	Weight  uint64
}

// ComputeStats walks the unit's definitions and accumulates totals.
func ComputeStats(u *Unit) Stats {
	var st Stats
	for _, s := range u.syms {
		if s.Declaration {
			continue
		}
		st.Globals++
		if s.Kind == KindFunction {
			st.Funcs++
			st.Blocks += uint64(s.Blocks)
			st.Insts += uint64(s.Insts)
			st.Clones += CloneCount(s.CloneMask)
		}
		st.Weight += SymbolWeight(s)
	}
	return st
}
