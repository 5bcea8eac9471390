// Package repository defines the data access interfaces for nodeflow.
//
// This package provides the repository abstraction layer for persisting
// project graphs and their generated assets. Two implementations exist in
// subpackages: sqlite (embedded, the default) and postgres.
//
// # Repository Interface
//
// A project is stored as its graph: one row per node with the payload as
// JSON, and one row per connection. SaveGraph replaces the stored graph of a
// project in a single transaction, so readers never observe half a save.
//
// # Round Trip
//
// LoadGraph returns a graph equal to the one saved, except for the layout
// cache on each node, which is never persisted and is recomputed by the
// renderer after load. Node and connection order is preserved.
//
// # Schema Migration
//
// Both implementations create their schema on startup with idempotent
// statements.
package repository
