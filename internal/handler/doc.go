// Package handler implements the HTTP API of nodeflow on fiber.
//
// GraphHandler maps REST routes onto service.GraphService. Every project
// route lives under /api/projects/:id; opening a project that was never
// saved yields an empty graph.
//
// # Response Format
//
// Success responses return JSON with 200, 201 or 202. Errors return
// {error, details}; service sentinel errors select the status code (404 for
// missing nodes, connections, templates and projects, 400 for malformed
// input, 409 for an occupied input, 422 for connections the graph rules
// reject).
//
// # Server-Sent Events
//
// NewApp mounts the hub's stream at /api/events so clients see graph
// changes, generation results and saves as they happen.
package handler
