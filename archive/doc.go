// Package archive bundles shard outputs into ar archives a native
// linker consumes directly: GNU dialect for ELF and COFF targets, BSD
// dialect for Mach-O. One archive is written per requested output kind,
// holding the per-shard text members plus the metadata and preamble
// members.
package archive
