package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"nodeflow/internal/adapter"
	"nodeflow/internal/codec"
	"nodeflow/internal/domain"
	"nodeflow/internal/graphstore"
	"nodeflow/internal/repository"
	"nodeflow/internal/service"
)

// GraphHandler handles project API requests
type GraphHandler struct {
	svc    *service.GraphService
	logger *slog.Logger
}

// NewGraphHandler creates a new graph handler
func NewGraphHandler(svc *service.GraphService, logger *slog.Logger) *GraphHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GraphHandler{svc: svc, logger: logger}
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type createNodeRequest struct {
	Type     domain.NodeType `json:"type"`
	Position domain.Position `json:"position"`
	Data     json.RawMessage `json:"data,omitempty"`
}

type connectRequest struct {
	FromNodeID   string `json:"fromNodeId"`
	FromHandleID string `json:"fromHandleId"`
	ToNodeID     string `json:"toNodeId"`
	ToHandleID   string `json:"toHandleId"`
	// Replace rewires an occupied input instead of rejecting the connection
	Replace bool `json:"replace,omitempty"`
}

type selectRequest struct {
	Modified bool `json:"modified"`
}

type layoutRequest struct {
	HandleYOffsets  map[string]float64 `json:"handleYOffsets"`
	MinimizedHeight float64            `json:"minimizedHeight"`
}

type historyResponse struct {
	service.Snapshot
	Moved bool `json:"moved"`
}

// ============================================================================
// Projects
// ============================================================================

// ListProjects returns the stored projects
func (h *GraphHandler) ListProjects(c fiber.Ctx) error {
	projects, err := h.svc.ListProjects(c.Context())
	if err != nil {
		return h.fail(c, "Failed to list projects", err)
	}
	if projects == nil {
		projects = []repository.Project{}
	}
	return c.JSON(projects)
}

// DeleteProject removes a project and its gallery
func (h *GraphHandler) DeleteProject(c fiber.Ctx) error {
	if err := h.svc.DeleteProject(c.Context(), c.Params("id")); err != nil {
		return h.fail(c, "Failed to delete project", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetGraph returns the project snapshot. The graph fingerprint doubles as
// the ETag.
func (h *GraphHandler) GetGraph(c fiber.Ctx) error {
	snap, err := h.svc.Snapshot(c.Context(), c.Params("id"))
	if err != nil {
		return h.fail(c, "Failed to get graph", err)
	}
	etag := strconv.Quote(snap.Fingerprint)
	c.Set(fiber.HeaderETag, etag)
	if c.Get(fiber.HeaderIfNoneMatch) == etag {
		return c.SendStatus(fiber.StatusNotModified)
	}
	return c.JSON(snap)
}

// ReplaceGraph sets the whole project graph as one undoable step
func (h *GraphHandler) ReplaceGraph(c fiber.Ctx) error {
	var g domain.Graph
	if err := c.Bind().JSON(&g); err != nil {
		return h.badRequest(c, err)
	}
	snap, err := h.svc.ReplaceGraph(c.Context(), c.Params("id"), g)
	if err != nil {
		return h.fail(c, "Failed to replace graph", err)
	}
	return c.JSON(snap)
}

// Save persists the project graph
func (h *GraphHandler) Save(c fiber.Ctx) error {
	id := c.Params("id")
	saved, err := h.svc.Save(c.Context(), id)
	if err != nil {
		return h.fail(c, "Failed to save project", err)
	}
	return c.JSON(fiber.Map{"saved": saved})
}

// Undo steps the project history back
func (h *GraphHandler) Undo(c fiber.Ctx) error {
	snap, moved, err := h.svc.Undo(c.Context(), c.Params("id"))
	if err != nil {
		return h.fail(c, "Failed to undo", err)
	}
	return c.JSON(historyResponse{Snapshot: snap, Moved: moved})
}

// Redo steps the project history forward
func (h *GraphHandler) Redo(c fiber.Ctx) error {
	snap, moved, err := h.svc.Redo(c.Context(), c.Params("id"))
	if err != nil {
		return h.fail(c, "Failed to redo", err)
	}
	return c.JSON(historyResponse{Snapshot: snap, Moved: moved})
}

// ============================================================================
// Nodes
// ============================================================================

// CreateNode adds a node to the project graph
func (h *GraphHandler) CreateNode(c fiber.Ctx) error {
	var req createNodeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.badRequest(c, err)
	}
	n, err := h.svc.AddNode(c.Context(), c.Params("id"), req.Type, req.Position, req.Data)
	if err != nil {
		return h.fail(c, "Failed to create node", err)
	}
	return c.Status(fiber.StatusCreated).JSON(n)
}

// UpdateNode merges a partial data patch into a node. With
// ?skipHistory=true the change replaces the present history entry.
func (h *GraphHandler) UpdateNode(c fiber.Ctx) error {
	var patch domain.Patch
	if err := c.Bind().JSON(&patch); err != nil {
		return h.badRequest(c, err)
	}
	n, err := h.svc.UpdateNode(c.Context(), c.Params("id"), c.Params("nodeId"), patch, skipHistory(c))
	if err != nil {
		return h.fail(c, "Failed to update node", err)
	}
	return c.JSON(n)
}

// MoveNode sets a node's canvas position
func (h *GraphHandler) MoveNode(c fiber.Ctx) error {
	var pos domain.Position
	if err := c.Bind().JSON(&pos); err != nil {
		return h.badRequest(c, err)
	}
	n, err := h.svc.MoveNode(c.Context(), c.Params("id"), c.Params("nodeId"), pos, skipHistory(c))
	if err != nil {
		return h.fail(c, "Failed to move node", err)
	}
	return c.JSON(n)
}

// DeleteNode removes a node, or the whole selection when the node is part of it
func (h *GraphHandler) DeleteNode(c fiber.Ctx) error {
	removed, err := h.svc.DeleteNode(c.Context(), c.Params("id"), c.Params("nodeId"))
	if err != nil {
		return h.fail(c, "Failed to delete node", err)
	}
	return c.JSON(fiber.Map{"nodes": removed})
}

// DuplicateNode copies a node, or the whole selection when the node is part of it
func (h *GraphHandler) DuplicateNode(c fiber.Ctx) error {
	created, err := h.svc.DuplicateNode(c.Context(), c.Params("id"), c.Params("nodeId"))
	if err != nil {
		return h.fail(c, "Failed to duplicate node", err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"nodes": created})
}

// ResetNode restores node defaults, selection-aware like DeleteNode
func (h *GraphHandler) ResetNode(c fiber.Ctx) error {
	reset, err := h.svc.ResetNode(c.Context(), c.Params("id"), c.Params("nodeId"))
	if err != nil {
		return h.fail(c, "Failed to reset node", err)
	}
	return c.JSON(fiber.Map{"nodes": reset})
}

// Generate starts generation for a node. 202 means a task is running; 200
// means the node's error field explains why none was started.
func (h *GraphHandler) Generate(c fiber.Ctx) error {
	started, err := h.svc.Generate(c.Context(), c.Params("id"), c.Params("nodeId"))
	if err != nil {
		return h.fail(c, "Failed to start generation", err)
	}
	status := fiber.StatusOK
	if started {
		status = fiber.StatusAccepted
	}
	return c.Status(status).JSON(fiber.Map{"started": started})
}

// SelectNode applies a click to the selection. The optional body
// {"modified": true} toggles membership instead of replacing it.
func (h *GraphHandler) SelectNode(c fiber.Ctx) error {
	var req selectRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return h.badRequest(c, err)
		}
	}
	selection, err := h.svc.SelectNode(c.Context(), c.Params("id"), c.Params("nodeId"), req.Modified)
	if err != nil {
		return h.fail(c, "Failed to select node", err)
	}
	return c.JSON(fiber.Map{"selection": selection})
}

// ClearSelection empties the project selection
func (h *GraphHandler) ClearSelection(c fiber.Ctx) error {
	if err := h.svc.ClearSelection(c.Context(), c.Params("id")); err != nil {
		return h.fail(c, "Failed to clear selection", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Geometry returns a node's handle anchors
func (h *GraphHandler) Geometry(c fiber.Ctx) error {
	geo, err := h.svc.Geometry(c.Context(), c.Params("id"), c.Params("nodeId"))
	if err != nil {
		return h.fail(c, "Failed to resolve geometry", err)
	}
	return c.JSON(geo)
}

// SetLayout stores measured handle offsets reported by a client
func (h *GraphHandler) SetLayout(c fiber.Ctx) error {
	var req layoutRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.badRequest(c, err)
	}
	cache := domain.LayoutCache{HandleYOffsets: req.HandleYOffsets, MinimizedHeight: req.MinimizedHeight}
	if err := h.svc.SetLayoutCache(c.Context(), c.Params("id"), c.Params("nodeId"), cache); err != nil {
		return h.fail(c, "Failed to store layout", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ============================================================================
// Connections
// ============================================================================

// Connect adds a connection between an output and an input handle
func (h *GraphHandler) Connect(c fiber.Ctx) error {
	var req connectRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.badRequest(c, err)
	}
	conn, err := h.svc.Connect(c.Context(), c.Params("id"), req.FromNodeID, req.FromHandleID, req.ToNodeID, req.ToHandleID, req.Replace)
	if err != nil {
		return h.fail(c, "Failed to connect", err)
	}
	return c.Status(fiber.StatusCreated).JSON(conn)
}

// Disconnect removes a connection
func (h *GraphHandler) Disconnect(c fiber.Ctx) error {
	if err := h.svc.Disconnect(c.Context(), c.Params("id"), c.Params("cid")); err != nil {
		return h.fail(c, "Failed to disconnect", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Stale lists connections attached to hidden handles
func (h *GraphHandler) Stale(c fiber.Ctx) error {
	stale, err := h.svc.Stale(c.Context(), c.Params("id"))
	if err != nil {
		return h.fail(c, "Failed to list stale connections", err)
	}
	if stale == nil {
		stale = []domain.Connection{}
	}
	return c.JSON(stale)
}

// Pointer feeds one pointer event to the project's interaction controller
func (h *GraphHandler) Pointer(c fiber.Ctx) error {
	var ev service.PointerEvent
	if err := c.Bind().JSON(&ev); err != nil {
		return h.badRequest(c, err)
	}
	res, err := h.svc.Pointer(c.Context(), c.Params("id"), ev)
	if err != nil {
		return h.fail(c, "Failed to handle pointer event", err)
	}
	return c.JSON(res)
}

// ============================================================================
// Import / Export
// ============================================================================

// Export writes the project graph as ?format=json (default) or yaml
func (h *GraphHandler) Export(c fiber.Ctx) error {
	id := c.Params("id")
	format := c.Query("format", "json")
	cd, err := codec.ForFormat(format)
	if err != nil {
		return h.fail(c, "Failed to export", err)
	}

	var buf bytes.Buffer
	if err := h.svc.Export(c.Context(), id, format, &buf); err != nil {
		return h.fail(c, "Failed to export", err)
	}
	c.Set(fiber.HeaderContentType, cd.ContentType())
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%s.%s", id, extension(format)))
	return c.Send(buf.Bytes())
}

// Import replaces the project graph with the request body and starts a
// fresh history
func (h *GraphHandler) Import(c fiber.Ctx) error {
	snap, err := h.svc.Import(c.Context(), c.Params("id"), c.Query("format", "json"), bytes.NewReader(c.Body()))
	if err != nil {
		return h.fail(c, "Failed to import", err)
	}
	return c.JSON(snap)
}

// Assets returns the project's gallery
func (h *GraphHandler) Assets(c fiber.Ctx) error {
	assets, err := h.svc.Assets(c.Context(), c.Params("id"))
	if err != nil {
		return h.fail(c, "Failed to list assets", err)
	}
	if assets == nil {
		assets = []repository.Asset{}
	}
	return c.JSON(assets)
}

// ============================================================================
// Templates
// ============================================================================

// ListTemplates returns the available workflow templates
func (h *GraphHandler) ListTemplates(c fiber.Ctx) error {
	return c.JSON(h.svc.Templates())
}

// ApplyTemplate loads a template into a project
func (h *GraphHandler) ApplyTemplate(c fiber.Ctx) error {
	snap, err := h.svc.ApplyTemplate(c.Context(), c.Params("id"), c.Params("name"))
	if err != nil {
		return h.fail(c, "Failed to apply template", err)
	}
	return c.JSON(snap)
}

// ReloadTemplates rereads the template directory
func (h *GraphHandler) ReloadTemplates(c fiber.Ctx) error {
	if err := h.svc.ReloadTemplates(); err != nil {
		return h.fail(c, "Failed to reload templates", err)
	}
	return c.JSON(h.svc.Templates())
}

// ============================================================================
// Helpers
// ============================================================================

func skipHistory(c fiber.Ctx) bool {
	skip, _ := strconv.ParseBool(c.Query("skipHistory"))
	return skip
}

func extension(format string) string {
	if format == "yml" {
		return "yaml"
	}
	return format
}

func (h *GraphHandler) badRequest(c fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "Invalid request body", Details: err.Error()})
}

// fail maps a service error onto a status code and writes it
func (h *GraphHandler) fail(c fiber.Ctx, msg string, err error) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		h.logger.Error(msg, "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(ErrorResponse{Error: msg, Details: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNodeNotFound),
		errors.Is(err, service.ErrConnectionNotFound),
		errors.Is(err, service.ErrTemplateNotFound),
		errors.Is(err, repository.ErrProjectNotFound),
		errors.Is(err, graphstore.ErrUnknownNode):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrInvalidNodeType),
		errors.Is(err, service.ErrInvalidPatch),
		errors.Is(err, service.ErrInvalidPointer),
		errors.Is(err, codec.ErrUnknownFormat),
		errors.Is(err, codec.ErrMalformed):
		return fiber.StatusBadRequest
	case errors.Is(err, graphstore.ErrInputOccupied):
		return fiber.StatusConflict
	case errors.Is(err, graphstore.ErrUnknownHandle),
		errors.Is(err, graphstore.ErrDirection),
		errors.Is(err, graphstore.ErrSelfLoop),
		errors.Is(err, graphstore.ErrIncompatibleHandles),
		errors.Is(err, adapter.ErrUnsupported):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, service.ErrClosed):
		return fiber.StatusServiceUnavailable
	}
	var syntax *json.SyntaxError
	if errors.As(err, &syntax) {
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}
