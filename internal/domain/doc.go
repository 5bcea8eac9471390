// Package domain defines the core types of the nodeflow workflow editor.
//
// This package contains the entities and value objects of the node graph:
// typed nodes placed on an infinite canvas, the typed handles they expose and
// the directed connections wired between them.
//
// # Core Types
//
// Node is a typed unit of work (text input, image generator, video generator,
// ...) with a canvas position and a payload whose shape is selected by its
// NodeType.
//
// Payload is a closed tagged union: every NodeType has exactly one concrete
// payload struct, so reset and duplicate rules are exhaustive per variant.
// Every payload embeds NodeState (loading flag, inline error, minimized flag)
// and a LayoutCache of measured handle offsets. The cache is derived data: it
// never takes part in JSON, fingerprints or equality.
//
// Connection is a directed edge from an output handle to an input handle.
//
// Graph is the unit of persistence and of undo/redo snapshotting.
//
// # Handles
//
// Each NodeType declares a static set of input and output HandleSpecs. For
// fan-out types (image generator, character extractor) the visible output set
// is a function of the payload; the declared set is always the superset.
// Two handles are compatible iff their HandleTypes are equal.
//
// # Design Principles
//
// - Values, not shared mutable records: payloads are cloned before change
// - No database or transport dependencies
// - Closed enumerations with meaningful constants
package domain
