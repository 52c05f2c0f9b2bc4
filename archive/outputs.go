package archive

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kyra-lang/nativeimage/backend"
	"github.com/kyra-lang/nativeimage/errors"
	"github.com/kyra-lang/nativeimage/unit"
)

// output describes one emittable kind: the archive file tag, the member
// name infix and the member extension.
type output struct {
	tag   string
	infix string
	ext   string
	sel   func(backend.Outputs) []byte
	want  func(backend.Request) bool
}

var outputs = []output{
	{"unopt", "_unopt", ".bc", func(o backend.Outputs) []byte { return o.Unopt }, func(r backend.Request) bool { return r.Unopt }},
	{"opt", "_opt", ".bc", func(o backend.Outputs) []byte { return o.Opt }, func(r backend.Request) bool { return r.Opt }},
	{"obj", "", ".o", func(o backend.Outputs) []byte { return o.Obj }, func(r backend.Request) bool { return r.Obj }},
	{"asm", "", ".s", func(o backend.Outputs) []byte { return o.Asm }, func(r backend.Request) bool { return r.Asm }},
}

// ShardMemberName names the archive member carrying shard i's buffer for
// the given kind tag ("unopt", "opt", "obj" or "asm").
func ShardMemberName(tag string, i int) string {
	for _, o := range outputs {
		if o.tag == tag {
			return fmt.Sprintf("text%s#%d%s", o.infix, i, o.ext)
		}
	}
	return fmt.Sprintf("text#%d", i)
}

// WriteOutputs writes one archive per requested output kind under dir,
// named "<base>-<tag>.a". Shard members are "text[#infix]#<i>.<ext>" in
// shard order, followed by the metadata and preamble members when
// present. Buffers a degraded compiler never produced are skipped.
func WriteOutputs(dir, base string, target unit.Target, req backend.Request, shards []backend.Outputs, metadata, preamble *backend.Outputs) error {
	kind := KindFor(target)
	for _, o := range outputs {
		if !o.want(req) {
			continue
		}
		var members []Member
		for i := range shards {
			if data := o.sel(shards[i]); data != nil {
				members = append(members, Member{
					Name: fmt.Sprintf("text%s#%d%s", o.infix, i, o.ext),
					Data: data,
				})
			}
		}
		if metadata != nil {
			if data := o.sel(*metadata); data != nil {
				members = append(members, Member{Name: "metadata" + o.infix + o.ext, Data: data})
			}
		}
		if preamble != nil {
			if data := o.sel(*preamble); data != nil {
				members = append(members, Member{Name: "preamble" + o.infix + o.ext, Data: data})
			}
		}
		if len(members) == 0 {
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("%s-%s.a", base, o.tag))
		if err := writeFile(path, kind, members); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, kind Kind, members []Member) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.IO(fmt.Sprintf("creating %s", path), err)
	}
	if err := Write(f, kind, members); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.IO(fmt.Sprintf("closing %s", path), err)
	}
	return nil
}
