// Package unit models the compilation unit handed to the native-image
// pipeline: an ordered set of symbols (functions, globals, aliases) with
// use-edges, weight hints, and a target platform descriptor.
//
// The package covers the pipeline's pre-partitioning stages:
//
//   - ExtractIndexTables removes the two reserved index-table symbols and
//     returns flat-id maps for the runtime loader.
//   - ComputeStats and SymbolWeight estimate compilation cost for the
//     thread-count heuristic and the partitioner.
//   - AssignSyntheticNames names anonymous definitions before name-keyed
//     partitioning.
//   - Encode serializes the whole unit into one immutable buffer; Decode
//     produces a LazyUnit whose bodies resolve on demand from that buffer.
//
// A LazyUnit is the per-shard view: each worker decodes its own from the
// shared buffer, strips what its partition does not preserve, and hands
// the result to the backend. Use-lists become available only after
// MaterializeAll, mirroring how lazily loaded representations defer
// use-edge bookkeeping until every definition is resolved.
package unit
