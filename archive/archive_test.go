package archive_test

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/kyra-lang/nativeimage/archive"
	"github.com/kyra-lang/nativeimage/backend"
	"github.com/kyra-lang/nativeimage/unit"
)

func elf() unit.Target {
	return unit.Target{OS: "linux", Arch: "amd64", Format: unit.FormatELF}
}

func macho() unit.Target {
	return unit.Target{OS: "darwin", Arch: "arm64", Format: unit.FormatMachO}
}

// parsedMember is one entry read back out of a written archive.
type parsedMember struct {
	name string
	data []byte
}

// parseAr reads both dialects back: enough of the ar format to verify
// what Write produced.
func parseAr(t *testing.T, raw []byte) []parsedMember {
	t.Helper()
	if !bytes.HasPrefix(raw, []byte("!<arch>\n")) {
		t.Fatal("missing ar magic")
	}
	rest := raw[8:]

	var strtab []byte
	var members []parsedMember
	for len(rest) > 0 {
		if len(rest) < 60 {
			t.Fatalf("truncated header: %d bytes left", len(rest))
		}
		hdr := rest[:60]
		if hdr[58] != '`' || hdr[59] != '\n' {
			t.Fatalf("bad header terminator in %q", hdr)
		}
		name := strings.TrimRight(string(hdr[:16]), " ")
		size, err := strconv.Atoi(strings.TrimRight(string(hdr[48:58]), " "))
		if err != nil {
			t.Fatalf("bad size field %q: %v", hdr[48:58], err)
		}
		data := rest[60 : 60+size]
		rest = rest[60+size:]
		if size%2 == 1 {
			if rest[0] != '\n' {
				t.Fatal("missing padding byte")
			}
			rest = rest[1:]
		}

		switch {
		case name == "//":
			strtab = data
		case strings.HasPrefix(name, "#1/"):
			n, err := strconv.Atoi(name[3:])
			if err != nil {
				t.Fatalf("bad BSD name length %q", name)
			}
			realName := strings.TrimRight(string(data[:n]), "\x00")
			members = append(members, parsedMember{name: realName, data: data[n:]})
		case strings.HasPrefix(name, "/"):
			off, err := strconv.Atoi(name[1:])
			if err != nil {
				t.Fatalf("bad long-name reference %q", name)
			}
			end := bytes.Index(strtab[off:], []byte("/\n"))
			if end < 0 {
				t.Fatalf("unterminated long name at %d", off)
			}
			members = append(members, parsedMember{name: string(strtab[off : off+end]), data: data})
		default:
			members = append(members, parsedMember{name: strings.TrimSuffix(name, "/"), data: data})
		}
	}
	return members
}

func TestWriteGNU(t *testing.T) {
	members := []archive.Member{
		{Name: "metadata.o", Data: []byte("meta")},
		{Name: "text#0.o", Data: []byte{1, 2, 3}}, // odd size, needs padding
		{Name: "text_unopt#12.bc", Data: []byte("long-named member")},
	}
	var buf bytes.Buffer
	if err := archive.Write(&buf, archive.KindGNU, members); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got := parseAr(t, buf.Bytes())
	if len(got) != len(members) {
		t.Fatalf("members: got %d, want %d", len(got), len(members))
	}
	for i, m := range members {
		if got[i].name != m.Name {
			t.Errorf("member %d name: got %q, want %q", i, got[i].name, m.Name)
		}
		if !bytes.Equal(got[i].data, m.Data) {
			t.Errorf("member %d data: got %v, want %v", i, got[i].data, m.Data)
		}
	}
}

func TestWriteBSD(t *testing.T) {
	members := []archive.Member{
		{Name: "text#0.o", Data: []byte("abc")},
		{Name: "a_rather_long_member_name.o", Data: []byte{9}},
	}
	var buf bytes.Buffer
	if err := archive.Write(&buf, archive.KindBSD, members); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got := parseAr(t, buf.Bytes())
	if len(got) != len(members) {
		t.Fatalf("members: got %d, want %d", len(got), len(members))
	}
	for i, m := range members {
		if got[i].name != m.Name {
			t.Errorf("member %d name: got %q, want %q", i, got[i].name, m.Name)
		}
		if !bytes.Equal(got[i].data, m.Data) {
			t.Errorf("member %d data: got %v, want %v", i, got[i].data, m.Data)
		}
	}
}

func TestWriteDeterministic(t *testing.T) {
	members := []archive.Member{
		{Name: "text#0.o", Data: []byte("abc")},
		{Name: "text_with_a_long_name#1.o", Data: []byte("def")},
	}
	for _, kind := range []archive.Kind{archive.KindGNU, archive.KindBSD} {
		var a, b bytes.Buffer
		if err := archive.Write(&a, kind, members); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if err := archive.Write(&b, kind, members); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if !bytes.Equal(a.Bytes(), b.Bytes()) {
			t.Errorf("%s archives differ between runs", kind)
		}
	}
}

func TestKindFor(t *testing.T) {
	if got := archive.KindFor(elf()); got != archive.KindGNU {
		t.Errorf("elf: got %s", got)
	}
	coff := unit.Target{OS: "windows", Arch: "amd64", Format: unit.FormatCOFF}
	if got := archive.KindFor(coff); got != archive.KindGNU {
		t.Errorf("coff: got %s", got)
	}
	if got := archive.KindFor(macho()); got != archive.KindBSD {
		t.Errorf("macho: got %s", got)
	}
}

func TestWriteOutputs(t *testing.T) {
	dir := t.TempDir()
	shards := []backend.Outputs{
		{Obj: []byte("shard0"), Asm: []byte("asm0")},
		{Obj: []byte("shard1"), Asm: []byte("asm1")},
	}
	metadata := &backend.Outputs{Obj: []byte("meta")}
	preamble := &backend.Outputs{Obj: []byte("pre")}

	req := backend.Request{Obj: true, Asm: true}
	if err := archive.WriteOutputs(dir, "img", elf(), req, shards, metadata, preamble); err != nil {
		t.Fatalf("WriteOutputs: %v", err)
	}

	objRaw, err := os.ReadFile(filepath.Join(dir, "img-obj.a"))
	if err != nil {
		t.Fatalf("read obj archive: %v", err)
	}
	members := parseAr(t, objRaw)
	wantNames := []string{"text#0.o", "text#1.o", "metadata.o", "preamble.o"}
	if len(members) != len(wantNames) {
		t.Fatalf("obj members: got %d, want %d", len(members), len(wantNames))
	}
	for i, want := range wantNames {
		if members[i].name != want {
			t.Errorf("obj member %d: got %q, want %q", i, members[i].name, want)
		}
	}

	asmRaw, err := os.ReadFile(filepath.Join(dir, "img-asm.a"))
	if err != nil {
		t.Fatalf("read asm archive: %v", err)
	}
	asmMembers := parseAr(t, asmRaw)
	// Metadata and preamble produced no asm, so only the shards appear.
	if len(asmMembers) != 2 {
		t.Fatalf("asm members: got %d, want 2", len(asmMembers))
	}
	for i := range asmMembers {
		if want := fmt.Sprintf("text#%d.s", i); asmMembers[i].name != want {
			t.Errorf("asm member %d: got %q, want %q", i, asmMembers[i].name, want)
		}
	}

	// Kinds nobody requested produce no archive.
	if _, err := os.Stat(filepath.Join(dir, "img-opt.a")); !os.IsNotExist(err) {
		t.Error("unrequested opt archive written")
	}
}

func TestWriteOutputsSkipsEmptyKinds(t *testing.T) {
	dir := t.TempDir()
	shards := []backend.Outputs{{Obj: []byte("shard0")}}
	req := backend.Request{Obj: true, Unopt: true}
	if err := archive.WriteOutputs(dir, "img", elf(), req, shards, nil, nil); err != nil {
		t.Fatalf("WriteOutputs: %v", err)
	}
	// Unopt was requested but never produced: no empty archive.
	if _, err := os.Stat(filepath.Join(dir, "img-unopt.a")); !os.IsNotExist(err) {
		t.Error("empty unopt archive written")
	}
	if _, err := os.Stat(filepath.Join(dir, "img-obj.a")); err != nil {
		t.Errorf("obj archive missing: %v", err)
	}
}

func TestShardMemberName(t *testing.T) {
	tests := []struct {
		tag  string
		i    int
		want string
	}{
		{"unopt", 0, "text_unopt#0.bc"},
		{"opt", 3, "text_opt#3.bc"},
		{"obj", 12, "text#12.o"},
		{"asm", 1, "text#1.s"},
	}
	for _, tt := range tests {
		if got := archive.ShardMemberName(tt.tag, tt.i); got != tt.want {
			t.Errorf("ShardMemberName(%q, %d): got %q, want %q", tt.tag, tt.i, got, tt.want)
		}
	}
}
