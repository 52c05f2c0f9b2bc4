package backend_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kyra-lang/nativeimage/backend"
)

func TestRequestAny(t *testing.T) {
	if (backend.Request{}).Any() {
		t.Error("empty request reports Any")
	}
	for _, r := range []backend.Request{
		{Unopt: true}, {Opt: true}, {Obj: true}, {Asm: true},
	} {
		if !r.Any() {
			t.Errorf("%+v reports no outputs", r)
		}
	}
}

func TestMissing(t *testing.T) {
	req := backend.Request{Unopt: true, Opt: true, Obj: true, Asm: true}
	out := backend.Outputs{Opt: []byte{1}, Asm: []byte{2}}
	got := backend.Missing(req, out)
	if diff := cmp.Diff([]string{"unopt", "obj"}, got); diff != "" {
		t.Errorf("missing (-want +got):\n%s", diff)
	}

	if missing := backend.Missing(backend.Request{}, backend.Outputs{}); missing != nil {
		t.Errorf("empty request missing: %v", missing)
	}
}
