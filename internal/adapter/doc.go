// Package adapter connects generative nodes to the backends that produce
// their outputs.
//
// # Requests
//
// BuildRequest turns a node and the values flowing into its input handles
// into a Request. A connected text input wins over the node's own text
// field; required inputs that are neither connected nor filled in yield a
// *MissingInputError, which callers write into the node's error field.
//
// # Generators
//
// A Generator serves one or more node types. HTTPGenerator posts jobs to a
// remote backend with resty; Stub answers locally with placeholder media.
// Backend errors are reported as *Failure values.
//
// # Registry
//
// Registry binds each node type to the first registered generator that
// supports it, with an optional fallback for the rest.
package adapter
