package shard_test

import (
	"testing"

	"github.com/kyra-lang/nativeimage/partition"
	"github.com/kyra-lang/nativeimage/shard"
	"github.com/kyra-lang/nativeimage/unit"
)

func testTarget() unit.Target {
	return unit.Target{OS: "linux", Arch: "amd64", Format: unit.FormatELF}
}

// shardCopy encodes a unit and decodes a fresh lazy copy of it, the same
// round trip every worker performs.
func shardCopy(t *testing.T, syms []*unit.Symbol) *unit.LazyUnit {
	t.Helper()
	u := unit.New(testTarget())
	for _, s := range syms {
		if err := u.Add(s); err != nil {
			t.Fatalf("Add(%q): %v", s.Name, err)
		}
	}
	lu, err := unit.Decode(unit.Encode(u))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return lu
}

func keep(names ...string) *partition.Partition {
	p := &partition.Partition{
		Globals: make(map[string]bool),
		FVars:   make(map[string]uint32),
		GVars:   make(map[string]uint32),
	}
	for _, n := range names {
		p.Globals[n] = true
	}
	return p
}

func TestMaterializePreservedStripsOthers(t *testing.T) {
	lu := shardCopy(t, []*unit.Symbol{
		{Name: "mine", Kind: unit.KindFunction, Insts: 5, Body: []byte{1}},
		{Name: "theirs", Kind: unit.KindFunction, Insts: 5, Body: []byte{2}},
		{Name: "theirglobal", Kind: unit.KindGlobal, Body: []byte{3}},
	})

	if err := shard.MaterializePreserved(lu, keep("mine")); err != nil {
		t.Fatalf("MaterializePreserved: %v", err)
	}

	mine := lu.Lookup("mine")
	if mine.Declaration || mine.Body == nil {
		t.Error("preserved symbol lost its definition")
	}

	for _, name := range []string{"theirs", "theirglobal"} {
		s := lu.Lookup(name)
		if !s.Declaration || s.Body != nil {
			t.Errorf("%s: not stripped to a declaration", name)
		}
		if s.Linkage != unit.LinkageExternal || s.Visibility != unit.VisibilityHidden || !s.DSOLocal {
			t.Errorf("%s: wrong linkage after strip: %+v", name, s)
		}
	}
	if !lu.Materialized() {
		t.Error("unit not fully materialized on return")
	}
}

func TestMaterializePreservedKeepsNonPartitionableInternal(t *testing.T) {
	lu := shardCopy(t, []*unit.Symbol{
		{Name: "mine", Kind: unit.KindFunction, Insts: 5, Refs: []string{"inl"}, Body: []byte{1}},
		{Name: "inl", Kind: unit.KindFunction, NoPartition: true, Insts: 1, Body: []byte{2}},
	})

	if err := shard.MaterializePreserved(lu, keep("mine")); err != nil {
		t.Fatalf("MaterializePreserved: %v", err)
	}

	inl := lu.Lookup("inl")
	if inl.Declaration || inl.Body == nil {
		t.Error("non-partitionable symbol lost its body")
	}
	if inl.Linkage != unit.LinkageInternal || inl.Visibility != unit.VisibilityDefault {
		t.Errorf("non-partitionable symbol not internal: %+v", inl)
	}
}

func TestMaterializePreservedSkipsInternal(t *testing.T) {
	lu := shardCopy(t, []*unit.Symbol{
		{Name: "mine", Kind: unit.KindFunction, Insts: 5, Body: []byte{1}},
		{Name: "priv", Kind: unit.KindFunction, Linkage: unit.LinkageInternal, Insts: 1, Body: []byte{2}},
	})

	if err := shard.MaterializePreserved(lu, keep("mine")); err != nil {
		t.Fatalf("MaterializePreserved: %v", err)
	}
	priv := lu.Lookup("priv")
	if priv.Declaration || priv.Body == nil {
		t.Error("internal symbol was stripped")
	}
}

func TestMaterializePreservedMissingPreserved(t *testing.T) {
	lu := shardCopy(t, []*unit.Symbol{
		{Name: "mine", Kind: unit.KindFunction, Body: []byte{1}},
	})
	if err := shard.MaterializePreserved(lu, keep("ghost")); err == nil {
		t.Error("expected error for preserved symbol missing from the unit")
	}
}

func TestAliasSwap(t *testing.T) {
	lu := shardCopy(t, []*unit.Symbol{
		{Name: "mine", Kind: unit.KindFunction, Insts: 5, Refs: []string{"api"}, Body: []byte{1}},
		{Name: "api", Kind: unit.KindAlias, AliasTarget: "impl"},
		{Name: "impl", Kind: unit.KindFunction, Insts: 9, Body: []byte{2}},
	})

	// The alias and its target live in another shard; only "mine" stays.
	if err := shard.MaterializePreserved(lu, keep("mine")); err != nil {
		t.Fatalf("MaterializePreserved: %v", err)
	}

	api := lu.Lookup("api")
	if api == nil {
		t.Fatal("alias name vanished from the shard")
	}
	if api.Kind != unit.KindFunction {
		t.Errorf("replacement kind: got %s, want function", api.Kind)
	}
	if !api.Declaration || api.Body != nil {
		t.Errorf("replacement not a bare declaration: %+v", api)
	}
	if api.Linkage != unit.LinkageExternal || api.Visibility != unit.VisibilityHidden || !api.DSOLocal {
		t.Errorf("replacement linkage: %+v", api)
	}

	// The user still refers to the same name, now resolving to the
	// declaration that the owning shard's definition satisfies at link.
	mine := lu.Lookup("mine")
	if len(mine.Refs) != 1 || mine.Refs[0] != "api" {
		t.Errorf("user refs after swap: %v", mine.Refs)
	}

	// No swap placeholder survives under its temporary name.
	for _, s := range lu.Symbols() {
		if s.Name != "" && s.Kind == unit.KindFunction && s.Name != "api" && s.Name != "mine" && s.Name != "impl" {
			t.Errorf("unexpected leftover symbol %q", s.Name)
		}
	}
}

func TestAliasChainResolvesToFinalTarget(t *testing.T) {
	lu := shardCopy(t, []*unit.Symbol{
		{Name: "mine", Kind: unit.KindGlobal, Body: []byte{1}},
		{Name: "outer", Kind: unit.KindAlias, AliasTarget: "inner"},
		{Name: "inner", Kind: unit.KindAlias, AliasTarget: "data"},
		{Name: "data", Kind: unit.KindGlobal, Body: []byte{2}},
	})

	if err := shard.MaterializePreserved(lu, keep("mine")); err != nil {
		t.Fatalf("MaterializePreserved: %v", err)
	}

	for _, name := range []string{"outer", "inner"} {
		s := lu.Lookup(name)
		if s == nil {
			t.Fatalf("%s vanished", name)
		}
		if s.Kind != unit.KindGlobal {
			t.Errorf("%s: kind %s after swap, want global", name, s.Kind)
		}
		if !s.Declaration {
			t.Errorf("%s: still a definition", name)
		}
	}
}

func TestAliasCycleFails(t *testing.T) {
	lu := shardCopy(t, []*unit.Symbol{
		{Name: "mine", Kind: unit.KindFunction, Body: []byte{1}},
		{Name: "a", Kind: unit.KindAlias, AliasTarget: "b"},
		{Name: "b", Kind: unit.KindAlias, AliasTarget: "a"},
	})
	if err := shard.MaterializePreserved(lu, keep("mine")); err == nil {
		t.Error("expected error for alias cycle")
	}
}

func TestPreservedAliasKept(t *testing.T) {
	lu := shardCopy(t, []*unit.Symbol{
		{Name: "api", Kind: unit.KindAlias, AliasTarget: "impl"},
		{Name: "impl", Kind: unit.KindFunction, Insts: 9, Body: []byte{2}},
	})

	if err := shard.MaterializePreserved(lu, keep("api", "impl")); err != nil {
		t.Fatalf("MaterializePreserved: %v", err)
	}
	api := lu.Lookup("api")
	if api.Kind != unit.KindAlias || api.AliasTarget != "impl" {
		t.Errorf("preserved alias changed: %+v", api)
	}
	if lu.Lookup("impl").Declaration {
		t.Error("preserved alias target stripped")
	}
}

func TestStampSuffix(t *testing.T) {
	lu := shardCopy(t, []*unit.Symbol{
		{Name: "f", Kind: unit.KindFunction, Body: []byte{1}},
	})
	shard.StampSuffix(lu, 3)
	if got := lu.Suffix(); got != "_3" {
		t.Errorf("suffix: got %q, want %q", got, "_3")
	}
	if got := lu.DebugIdentity(); got != "kyra#3" {
		t.Errorf("debug identity: got %q, want %q", got, "kyra#3")
	}
}
