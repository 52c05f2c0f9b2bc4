package unit

// ObjectFormat selects the object container convention for a target.
type ObjectFormat uint8

const (
	FormatELF ObjectFormat = iota
	FormatMachO
	FormatCOFF
)

func (f ObjectFormat) String() string {
	switch f {
	case FormatELF:
		return "elf"
	case FormatMachO:
		return "macho"
	case FormatCOFF:
		return "coff"
	}
	return "unknown"
}

// Target describes the platform a unit is being compiled for.
type Target struct {
	OS     string
	Arch   string
	Format ObjectFormat
}

// coffSymbolCeiling is the number of external symbols a COFF object may
// carry before the format's 16-bit section limits start to bite. The last
// few entries are reserved for symbols inserted during compilation.
const coffSymbolCeiling = 64000

// SymbolCeiling returns the external-symbol-count limit imposed by the
// target's object format, or 0 when the format has no practical limit.
func (t Target) SymbolCeiling() int {
	if t.Format == FormatCOFF {
		return coffSymbolCeiling
	}
	return 0
}
