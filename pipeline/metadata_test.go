package pipeline_test

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/kyra-lang/nativeimage/pipeline"
	"github.com/kyra-lang/nativeimage/unit"
)

func TestBuildMetadataUnit(t *testing.T) {
	u, err := pipeline.BuildMetadataUnit(elf(), 2, 5, 7)
	if err != nil {
		t.Fatalf("BuildMetadataUnit: %v", err)
	}

	header := u.Lookup("__kyra_image_header")
	if header == nil {
		t.Fatal("image header missing")
	}
	want := make([]byte, 16)
	binary.LittleEndian.PutUint32(want[0:], pipeline.MetadataVersion)
	binary.LittleEndian.PutUint32(want[4:], 2)
	binary.LittleEndian.PutUint32(want[8:], 5)
	binary.LittleEndian.PutUint32(want[12:], 7)
	if !bytes.Equal(header.Body, want) {
		t.Errorf("header body: got %v, want %v", header.Body, want)
	}

	shards := u.Lookup("__kyra_shard_tables")
	if shards == nil {
		t.Fatal("shard table missing")
	}
	// 9 slots per shard, 2 shards.
	if len(shards.Refs) != 18 {
		t.Errorf("shard table slots: got %d, want 18", len(shards.Refs))
	}
	if len(shards.Body) != 18*8 {
		t.Errorf("shard table body: got %d bytes, want %d", len(shards.Body), 18*8)
	}
	for _, ref := range shards.Refs {
		slot := u.Lookup(ref)
		if slot == nil {
			t.Errorf("slot %q not in unit", ref)
			continue
		}
		if !slot.Declaration || slot.Visibility != unit.VisibilityHidden || !slot.DSOLocal {
			t.Errorf("slot %q: wrong shape: %+v", ref, slot)
		}
	}
	for i := 0; i < 2; i++ {
		name := fmt.Sprintf("__kyra_fvar_base_%d", i)
		if u.Lookup(name) == nil {
			t.Errorf("per-shard slot %q missing", name)
		}
	}

	ptls := u.Lookup("__kyra_ptls_table")
	if ptls == nil {
		t.Fatal("ptls table missing")
	}
	if len(ptls.Refs) != 3 || len(ptls.Body) != 3*8 {
		t.Errorf("ptls table shape: %d refs, %d bytes", len(ptls.Refs), len(ptls.Body))
	}
	for _, ref := range ptls.Refs {
		slot := u.Lookup(ref)
		if slot == nil || slot.Declaration {
			t.Errorf("ptls slot %q missing or undefined", ref)
		}
	}

	ptrs := u.Lookup("__kyra_image_pointers")
	if ptrs == nil {
		t.Fatal("image pointers missing")
	}
	wantRefs := []string{"__kyra_image_header", "__kyra_shard_tables", "__kyra_ptls_table"}
	if len(ptrs.Refs) != len(wantRefs) {
		t.Fatalf("pointer refs: got %v", ptrs.Refs)
	}
	for i, ref := range wantRefs {
		if ptrs.Refs[i] != ref {
			t.Errorf("pointer ref %d: got %q, want %q", i, ptrs.Refs[i], ref)
		}
	}
}

func TestBuildPreambleUnit(t *testing.T) {
	data := []byte("whole program image")
	u, err := pipeline.BuildPreambleUnit(elf(), data)
	if err != nil {
		t.Fatalf("BuildPreambleUnit: %v", err)
	}

	blob := u.Lookup("__kyra_image_data")
	if blob == nil || !bytes.Equal(blob.Body, data) {
		t.Fatalf("image data: got %+v", blob)
	}
	// The blob is copied, not aliased.
	data[0] = 'X'
	if blob.Body[0] == 'X' {
		t.Error("preamble aliases caller memory")
	}

	size := u.Lookup("__kyra_image_size")
	if size == nil || len(size.Body) != 8 {
		t.Fatalf("image size: got %+v", size)
	}
	if got := binary.LittleEndian.Uint64(size.Body); got != uint64(len(data)) {
		t.Errorf("size record: got %d, want %d", got, len(data))
	}
}
