// Package shard turns one worker's lazily decoded copy of the serialized
// unit into an independently compilable shard.
//
// MaterializePreserved keeps the partition's preserved definitions and
// strips every other exported definition down to an external declaration,
// so the backend never optimizes code that belongs to another shard.
// Aliases need a two-phase placeholder swap because an alias may not
// reference a bare declaration. BuildVarTables then rebuilds the shard's
// local index tables so the runtime loader can locate any function or
// global by flat id regardless of which shard it landed in.
package shard
