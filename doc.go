// Package nativeimage implements the parallel native-image emission backend
// of the Kyra ahead-of-time compiler.
//
// Given a single monolithic compilation unit produced by the front end, the
// pipeline splits it into weight-balanced shards, compiles every shard
// independently, and bundles the results into per-output-kind archives that
// the runtime loader consumes.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	nativeimage/         Root package documentation
//	├── pipeline/        Thread-count heuristic and multi-shard orchestration
//	├── unit/            Compilation unit model, extraction, stats, serialization
//	├── partition/       Union-find + LPT weight-balanced partitioning
//	├── shard/           Per-shard materialization and index table rebuilding
//	├── backend/         Opaque shard compiler contract (+ wasm reference backend)
//	├── archive/         ar archive writer for shard, metadata and preamble members
//	└── errors/          Structured error types for debugging
//
// # Quick Start
//
// Compile a unit into archives:
//
//	u, err := unit.Load(data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	target := u.Target
//	req := backend.Request{Obj: true}
//	res, err := pipeline.Run(ctx, u, compiler, pipeline.Config{Emit: req})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	err = archive.WriteOutputs(dir, "img", target, req, res.Shards, res.Metadata, res.Preamble)
//
// The number of shards is computed from unit statistics and hardware
// parallelism; pass Config.ThreadOverride to force a specific count.
package nativeimage
