// Package backend defines the contract between the shard pipeline and
// the instruction-level compiler that turns one shard into output bytes.
//
// The pipeline never looks inside a compiler: it hands each worker's
// materialized shard to Compile and stores the returned buffers in that
// worker's output slot. The wasmbe subpackage provides a reference
// implementation that lowers shards to WebAssembly.
package backend
