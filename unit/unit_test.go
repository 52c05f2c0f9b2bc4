package unit_test

import (
	"testing"

	"github.com/kyra-lang/nativeimage/unit"
)

func testTarget() unit.Target {
	return unit.Target{OS: "linux", Arch: "amd64", Format: unit.FormatELF}
}

func TestAddAndLookup(t *testing.T) {
	u := unit.New(testTarget())
	s := &unit.Symbol{Name: "f", Kind: unit.KindFunction, Insts: 3}
	if err := u.Add(s); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got := u.Lookup("f"); got != s {
		t.Errorf("Lookup returned %v", got)
	}
	if u.Len() != 1 {
		t.Errorf("Len: got %d, want 1", u.Len())
	}
}

func TestAddDuplicateName(t *testing.T) {
	u := unit.New(testTarget())
	if err := u.Add(&unit.Symbol{Name: "f"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := u.Add(&unit.Symbol{Name: "f"}); err == nil {
		t.Error("expected error for duplicate symbol name")
	}
}

func TestAddUnnamed(t *testing.T) {
	u := unit.New(testTarget())
	if err := u.Add(&unit.Symbol{Kind: unit.KindGlobal}); err != nil {
		t.Fatalf("Add unnamed: %v", err)
	}
	if err := u.Add(&unit.Symbol{Kind: unit.KindGlobal}); err != nil {
		t.Fatalf("Add second unnamed: %v", err)
	}
	if u.Len() != 2 {
		t.Errorf("Len: got %d, want 2", u.Len())
	}
}

func TestRemove(t *testing.T) {
	u := unit.New(testTarget())
	u.Add(&unit.Symbol{Name: "a"})
	u.Add(&unit.Symbol{Name: "b"})
	u.Remove("a")

	if u.Lookup("a") != nil {
		t.Error("removed symbol still resolvable")
	}
	if u.Len() != 1 {
		t.Errorf("Len after remove: got %d, want 1", u.Len())
	}
	// Removing an absent name is a no-op.
	u.Remove("missing")
}

func TestSymbolCeiling(t *testing.T) {
	tests := []struct {
		format unit.ObjectFormat
		want   int
	}{
		{unit.FormatELF, 0},
		{unit.FormatMachO, 0},
		{unit.FormatCOFF, 64000},
	}
	for _, tt := range tests {
		target := unit.Target{OS: "any", Arch: "any", Format: tt.format}
		if got := target.SymbolCeiling(); got != tt.want {
			t.Errorf("%s ceiling: got %d, want %d", tt.format, got, tt.want)
		}
	}
}

func TestIsDefinition(t *testing.T) {
	def := &unit.Symbol{Name: "f"}
	decl := &unit.Symbol{Name: "g", Declaration: true}
	if !def.IsDefinition() {
		t.Error("definition reported as declaration")
	}
	if decl.IsDefinition() {
		t.Error("declaration reported as definition")
	}
}
