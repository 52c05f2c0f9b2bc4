package pipeline

import (
	"fmt"

	"github.com/kyra-lang/nativeimage/internal/binary"
	"github.com/kyra-lang/nativeimage/unit"
)

// Loader-facing metadata symbols. The byte layout is format version 1
// and must match what the runtime loader consumes.
const (
	// MetadataVersion is the image metadata format version.
	MetadataVersion uint32 = 1

	imageHeaderName   = "__kyra_image_header"
	shardTablesName   = "__kyra_shard_tables"
	ptlsTableName     = "__kyra_ptls_table"
	imagePointersName = "__kyra_image_pointers"

	imageDataName = "__kyra_image_data"
	imageSizeName = "__kyra_image_size"
)

// shardSlotNames lists the per-shard descriptor slots in table order.
// Each shard contributes one slot per name, suffixed "_<i>", resolved
// against the shard's rebuilt index tables at link time.
var shardSlotNames = []string{
	"__kyra_fvar_base",
	"__kyra_fvar_offsets",
	"__kyra_fvar_idxs",
	"__kyra_gvar_base",
	"__kyra_gvar_offsets",
	"__kyra_gvar_idxs",
	"__kyra_clone_slots",
	"__kyra_clone_offsets",
	"__kyra_clone_idxs",
}

// ptlsSlotNames lists the platform thread-local-storage support slots.
var ptlsSlotNames = []string{
	"__kyra_pgcstack_func_slot",
	"__kyra_pgcstack_key_slot",
	"__kyra_tls_offset",
}

// BuildMetadataUnit produces the single-shard metadata unit bundled next
// to the shard outputs: the image header record, the per-shard table of
// slot descriptors, and the TLS support table, tied together by one
// pointers symbol.
func BuildMetadataUnit(target unit.Target, threads, nfvars, ngvars int) (*unit.Unit, error) {
	u := unit.New(target)

	header := binary.NewWriter()
	header.WriteU32LE(MetadataVersion)
	header.WriteU32LE(uint32(threads))
	header.WriteU32LE(uint32(nfvars))
	header.WriteU32LE(uint32(ngvars))
	if err := u.Add(&unit.Symbol{
		Name:    imageHeaderName,
		Kind:    unit.KindGlobal,
		Linkage: unit.LinkageInternal,
		Body:    header.Bytes(),
	}); err != nil {
		return nil, err
	}

	var slots []string
	for i := 0; i < threads; i++ {
		for _, base := range shardSlotNames {
			name := fmt.Sprintf("%s_%d", base, i)
			if err := u.Add(&unit.Symbol{
				Name:        name,
				Kind:        unit.KindGlobal,
				Declaration: true,
				Visibility:  unit.VisibilityHidden,
				DSOLocal:    true,
			}); err != nil {
				return nil, err
			}
			slots = append(slots, name)
		}
	}
	if err := u.Add(&unit.Symbol{
		Name:       shardTablesName,
		Kind:       unit.KindGlobal,
		Visibility: unit.VisibilityHidden,
		DSOLocal:   true,
		Refs:       slots,
		Body:       zeroWords(len(slots)),
	}); err != nil {
		return nil, err
	}

	for _, name := range ptlsSlotNames {
		if err := u.Add(&unit.Symbol{
			Name:       name,
			Kind:       unit.KindGlobal,
			Visibility: unit.VisibilityHidden,
			DSOLocal:   true,
			Body:       zeroWords(1),
		}); err != nil {
			return nil, err
		}
	}
	if err := u.Add(&unit.Symbol{
		Name:       ptlsTableName,
		Kind:       unit.KindGlobal,
		Visibility: unit.VisibilityHidden,
		DSOLocal:   true,
		Refs:       append([]string(nil), ptlsSlotNames...),
		Body:       zeroWords(len(ptlsSlotNames)),
	}); err != nil {
		return nil, err
	}

	if err := u.Add(&unit.Symbol{
		Name: imagePointersName,
		Kind: unit.KindGlobal,
		Refs: []string{imageHeaderName, shardTablesName, ptlsTableName},
		Body: zeroWords(3),
	}); err != nil {
		return nil, err
	}
	return u, nil
}

// BuildPreambleUnit wraps caller-supplied whole-program data as a
// single-shard unit: one data blob symbol plus its size record.
func BuildPreambleUnit(target unit.Target, data []byte) (*unit.Unit, error) {
	u := unit.New(target)
	if err := u.Add(&unit.Symbol{
		Name: imageDataName,
		Kind: unit.KindGlobal,
		Body: append([]byte(nil), data...),
	}); err != nil {
		return nil, err
	}
	size := binary.NewWriter()
	size.WriteU64LE(uint64(len(data)))
	if err := u.Add(&unit.Symbol{
		Name: imageSizeName,
		Kind: unit.KindGlobal,
		Body: size.Bytes(),
	}); err != nil {
		return nil, err
	}
	return u, nil
}

// zeroWords reserves n pointer-sized zeroed slots, patched by the loader.
func zeroWords(n int) []byte {
	return make([]byte, n*8)
}
