package archive

import (
	"fmt"
	"io"
	"strings"

	"github.com/kyra-lang/nativeimage/errors"
	"github.com/kyra-lang/nativeimage/unit"
)

// Kind selects the ar archive dialect.
type Kind int

const (
	// KindGNU is the SysV/GNU dialect with a "//" long-name table.
	KindGNU Kind = iota
	// KindBSD is the Darwin dialect with "#1/n" inline long names.
	KindBSD
)

func (k Kind) String() string {
	if k == KindBSD {
		return "bsd"
	}
	return "gnu"
}

// KindFor returns the archive dialect native linkers expect for the
// target's object format.
func KindFor(target unit.Target) Kind {
	if target.Format == unit.FormatMachO {
		return KindBSD
	}
	return KindGNU
}

// Member is one named archive entry.
type Member struct {
	Name string
	Data []byte
}

const arMagic = "!<arch>\n"

// Write emits members as an ar archive of the given dialect. Headers are
// deterministic: zero timestamps and ids, mode 644, so identical inputs
// produce byte-identical archives.
func Write(w io.Writer, kind Kind, members []Member) error {
	if _, err := io.WriteString(w, arMagic); err != nil {
		return errors.IO("writing archive magic", err)
	}
	if kind == KindBSD {
		return writeBSD(w, members)
	}
	return writeGNU(w, members)
}

// writeGNU handles long member names through the "//" string table, which
// must precede every member that references it.
func writeGNU(w io.Writer, members []Member) error {
	var strtab strings.Builder
	long := make(map[int]int, len(members))
	for i, m := range members {
		if len(m.Name) > 15 {
			long[i] = strtab.Len()
			strtab.WriteString(m.Name)
			strtab.WriteString("/\n")
		}
	}
	if strtab.Len() > 0 {
		if err := writeEntry(w, "//", []byte(strtab.String())); err != nil {
			return err
		}
	}
	for i, m := range members {
		name := m.Name + "/"
		if off, ok := long[i]; ok {
			name = fmt.Sprintf("/%d", off)
		}
		if err := writeEntry(w, name, m.Data); err != nil {
			return errors.IO(fmt.Sprintf("writing member %q", m.Name), err)
		}
	}
	return nil
}

// writeBSD stores every name inline via the "#1/n" convention, padded to
// a 4-byte boundary as Darwin tooling does.
func writeBSD(w io.Writer, members []Member) error {
	for _, m := range members {
		padded := (len(m.Name) + 3) &^ 3
		body := make([]byte, padded+len(m.Data))
		copy(body, m.Name)
		copy(body[padded:], m.Data)
		if err := writeEntry(w, fmt.Sprintf("#1/%d", padded), body); err != nil {
			return errors.IO(fmt.Sprintf("writing member %q", m.Name), err)
		}
	}
	return nil
}

func writeEntry(w io.Writer, name string, data []byte) error {
	hdr := fmt.Sprintf("%-16s%-12d%-6d%-6d%-8s%-10d`\n", name, 0, 0, 0, "644", len(data))
	if _, err := io.WriteString(w, hdr); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	// Members start on even offsets.
	if len(data)%2 == 1 {
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
	}
	return nil
}
