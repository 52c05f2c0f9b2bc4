// Package partition assigns every partitionable definition of a
// compilation unit to one of T shards.
//
// Placement has one hard constraint and one goal. The constraint: if a
// symbol references another partitionable symbol, both must land in the
// same shard, since shards compile in total isolation. The goal: shards
// should carry roughly equal compilation weight.
//
// Connectivity is resolved with a union-find over def->use edges; cycles
// need no special handling because only "must stay together" matters, not
// order. Connected components are then placed largest-first onto the
// currently lightest shard, the classic LPT heuristic, which stays within
// 4/3 of the optimal makespan for identical machines.
package partition
