// Package service implements the application layer of nodeflow.
//
// GraphService coordinates between the HTTP handlers, the repository and the
// generation adapters. It keeps one Session per open project; a session owns
// the project's undo history and its interaction controller, and serializes
// every mutation of the project graph.
//
// # Generation
//
// Generate marks a node as loading, runs the generator in a goroutine and
// merges the answer back when it settles. Tasks are keyed by node id and
// cancelled when their node is deleted, reset or regenerated; a result for a
// node that no longer exists is dropped.
//
// # Event System
//
// The service publishes events via EventBus for real-time updates to
// connected clients via Server-Sent Events (SSE): graph changes, generation
// results, saves and template reloads.
//
// # Design Principles
//
// - Graph values are immutable; each mutation commits a new snapshot
// - Repository pattern for data access
// - Event-driven for real-time updates
// - Context-aware for cancellation and timeouts
package service
