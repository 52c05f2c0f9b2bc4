// Package pipeline coordinates parallel native-image emission.
//
// Run takes one compilation unit and fans it out over N shard workers:
// the unit is partitioned by symbol reference graph, serialized exactly
// once, and each worker decodes its own lazy view, strips everything
// outside its partition down to external declarations, rebuilds its
// slice of the index tables, and hands the result to a backend compiler.
// Small units, and units whose target cannot absorb the extra external
// symbols sharding introduces, bypass all of that and compile whole.
//
// The package also builds the two auxiliary units bundled next to the
// shard outputs: the metadata unit the runtime loader reads to stitch
// the shards back together, and the optional preamble unit carrying
// whole-program data.
package pipeline
