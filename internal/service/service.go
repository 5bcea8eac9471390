package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"nodeflow/internal/adapter"
	"nodeflow/internal/codec"
	"nodeflow/internal/domain"
	"nodeflow/internal/graphstore"
	"nodeflow/internal/layout"
	"nodeflow/internal/loader"
	"nodeflow/internal/repository"
)

var (
	// ErrNodeNotFound is returned for an operation on a node that does not exist
	ErrNodeNotFound = errors.New("node not found")
	// ErrConnectionNotFound is returned when removing an unknown connection
	ErrConnectionNotFound = errors.New("connection not found")
	// ErrInvalidNodeType is returned when adding a node of an unknown type
	ErrInvalidNodeType = errors.New("invalid node type")
	// ErrInvalidPatch is returned when a data patch does not fit the node's payload
	ErrInvalidPatch = errors.New("invalid node data")
	// ErrTemplateNotFound is returned for an unknown workflow template
	ErrTemplateNotFound = errors.New("template not found")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("service closed")
)

// Options configures a GraphService
type Options struct {
	HistoryCapacity int
	DuplicateOffset domain.Position
	// IDGenerator overrides uuid.NewString for node, connection and asset ids
	IDGenerator func() string
	Templates   *loader.Catalog
	Logger      *slog.Logger
}

// GraphService owns the project sessions and applies every graph mutation.
// Each session serializes its own mutations; sessions are independent.
type GraphService struct {
	repo       repository.Repository
	generators *adapter.Registry
	templates  *loader.Catalog
	eventBus   *EventBus
	store      *graphstore.Store
	logger     *slog.Logger
	newID      func() string
	capacity   int

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool

	// tasks outlive the requests that start them
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewGraphService creates a new graph service
func NewGraphService(repo repository.Repository, generators *adapter.Registry, eventBus *EventBus, opts Options) *GraphService {
	newID := opts.IDGenerator
	if newID == nil {
		newID = uuid.NewString
	}
	storeOpts := []graphstore.Option{graphstore.WithIDGenerator(newID)}
	if opts.DuplicateOffset != (domain.Position{}) {
		storeOpts = append(storeOpts, graphstore.WithDuplicateOffset(opts.DuplicateOffset))
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if eventBus == nil {
		eventBus = NewEventBus()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &GraphService{
		repo:       repo,
		generators: generators,
		templates:  opts.Templates,
		eventBus:   eventBus,
		store:      graphstore.New(storeOpts...),
		logger:     logger,
		newID:      newID,
		capacity:   opts.HistoryCapacity,
		sessions:   make(map[string]*Session),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Events returns the bus the service publishes to
func (s *GraphService) Events() *EventBus {
	return s.eventBus
}

// Close cancels running generations and waits for them to finish
func (s *GraphService) Close() {
	s.mu.Lock()
	s.closed = true
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.mu.Lock()
		sess.cancelAll()
		sess.mu.Unlock()
	}
	s.cancel()
	s.wg.Wait()
}

// session returns the open session of projectID, loading it on first use.
// A project that was never saved starts as an empty graph.
func (s *GraphService) session(ctx context.Context, projectID string) (*Session, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if sess, ok := s.sessions[projectID]; ok {
		s.mu.Unlock()
		return sess, nil
	}
	s.mu.Unlock()

	g, err := s.repo.LoadGraph(ctx, projectID)
	saved := ""
	switch {
	case errors.Is(err, repository.ErrProjectNotFound):
		g = domain.NewGraph()
		saved = g.Fingerprint()
	case err != nil:
		return nil, fmt.Errorf("load project %s: %w", projectID, err)
	default:
		before := len(g.Connections)
		g = s.store.Sanitize(g)
		if dropped := before - len(g.Connections); dropped > 0 {
			s.logger.Warn("dropped invalid connections on load", "project", projectID, "count", dropped)
		}
		saved = g.Fingerprint()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[projectID]; ok {
		return sess, nil
	}
	sess := newSession(projectID, g, s.store, s.capacity, saved)
	s.sessions[projectID] = sess
	sessionsOpen.Inc()
	s.logger.Debug("session opened", "project", projectID, "nodes", len(g.Nodes))
	return sess, nil
}

// withSession runs fn under the session lock of projectID
func (s *GraphService) withSession(ctx context.Context, projectID string, fn func(sess *Session) error) error {
	sess, err := s.session(ctx, projectID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return repository.ErrProjectNotFound
	}
	return fn(sess)
}

// mutate runs fn under the session lock and publishes graph_changed when
// the present graph changed
func (s *GraphService) mutate(ctx context.Context, projectID string, fn func(sess *Session) error) error {
	return s.withSession(ctx, projectID, func(sess *Session) error {
		before := sess.graph()
		undo, redo := sess.history.CanUndo(), sess.history.CanRedo()
		if err := fn(sess); err != nil {
			return err
		}
		if !domain.Equal(before, sess.graph()) || undo != sess.history.CanUndo() || redo != sess.history.CanRedo() {
			s.publishChanged(sess)
		}
		return nil
	})
}

func (s *GraphService) publishChanged(sess *Session) {
	s.eventBus.Publish(Event{
		Type: EventGraphChanged,
		Payload: GraphChanged{
			ProjectID:   sess.ID,
			Fingerprint: sess.graph().Fingerprint(),
			CanUndo:     sess.history.CanUndo(),
			CanRedo:     sess.history.CanRedo(),
		},
	})
}

// ============================================================================
// Projects
// ============================================================================

// ListProjects returns the stored projects
func (s *GraphService) ListProjects(ctx context.Context) ([]repository.Project, error) {
	return s.repo.ListProjects(ctx)
}

// DeleteProject drops a project's session and stored data
func (s *GraphService) DeleteProject(ctx context.Context, projectID string) error {
	s.mu.Lock()
	sess, open := s.sessions[projectID]
	delete(s.sessions, projectID)
	s.mu.Unlock()

	if open {
		sess.mu.Lock()
		sess.cancelAll()
		sess.closed = true
		sess.mu.Unlock()
		sessionsOpen.Dec()
	}

	err := s.repo.DeleteProject(ctx, projectID)
	if errors.Is(err, repository.ErrProjectNotFound) && open {
		// never saved, the session was all there was
		err = nil
	}
	if err != nil {
		return err
	}

	s.eventBus.Publish(Event{Type: EventProjectDeleted, Payload: map[string]string{"projectId": projectID}})
	return nil
}

// Snapshot returns the current state of a project
func (s *GraphService) Snapshot(ctx context.Context, projectID string) (Snapshot, error) {
	var snap Snapshot
	err := s.withSession(ctx, projectID, func(sess *Session) error {
		snap = sess.snapshot()
		return nil
	})
	return snap, err
}

// ReplaceGraph sets the whole graph as one undoable entry. Invalid
// connections are dropped.
func (s *GraphService) ReplaceGraph(ctx context.Context, projectID string, g domain.Graph) (Snapshot, error) {
	var snap Snapshot
	err := s.mutate(ctx, projectID, func(sess *Session) error {
		sess.cancelAll()
		sess.commit(s.store.Sanitize(g), false)
		sess.settleLoading(s.store)
		snap = sess.snapshot()
		return nil
	})
	return snap, err
}

// Save persists the project graph. It reports false without writing when the
// graph has not changed since the last save or load.
func (s *GraphService) Save(ctx context.Context, projectID string) (bool, error) {
	var saved bool
	err := s.withSession(ctx, projectID, func(sess *Session) error {
		g := sess.graph()
		fp := g.Fingerprint()
		if fp == sess.saved {
			savesTotal.WithLabelValues("unchanged").Inc()
			return nil
		}
		if err := s.repo.SaveGraph(ctx, projectID, g); err != nil {
			savesTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("save project %s: %w", projectID, err)
		}
		sess.saved = fp
		saved = true
		savesTotal.WithLabelValues("saved").Inc()

		s.eventBus.Publish(Event{
			Type:    EventProjectSaved,
			Payload: map[string]string{"projectId": projectID, "fingerprint": fp},
		})
		return nil
	})
	return saved, err
}

// Undo moves the project one entry back in its history
func (s *GraphService) Undo(ctx context.Context, projectID string) (Snapshot, bool, error) {
	return s.navigate(ctx, projectID, "undo")
}

// Redo moves the project one entry forward in its history
func (s *GraphService) Redo(ctx context.Context, projectID string) (Snapshot, bool, error) {
	return s.navigate(ctx, projectID, "redo")
}

func (s *GraphService) navigate(ctx context.Context, projectID, direction string) (Snapshot, bool, error) {
	var snap Snapshot
	var moved bool
	err := s.mutate(ctx, projectID, func(sess *Session) error {
		// a gesture in progress would write over the restored entry
		sess.controller.Cancel()
		if direction == "undo" {
			moved = sess.history.Undo()
		} else {
			moved = sess.history.Redo()
		}
		if moved {
			historyNavigationTotal.WithLabelValues(direction).Inc()
			sess.settleLoading(s.store)
		}
		snap = sess.snapshot()
		return nil
	})
	return snap, moved, err
}

// ============================================================================
// Nodes
// ============================================================================

// AddNode creates a node of type t at pos. data, when non-empty, is decoded
// over the type defaults.
func (s *GraphService) AddNode(ctx context.Context, projectID string, t domain.NodeType, pos domain.Position, data json.RawMessage) (domain.Node, error) {
	if !t.Valid() {
		return domain.Node{}, fmt.Errorf("%w: %q", ErrInvalidNodeType, t)
	}
	var payload domain.Payload
	if len(data) > 0 {
		p, err := domain.DecodePayload(t, data)
		if err != nil {
			return domain.Node{}, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
		}
		payload = domain.DuplicatePayload(p)
	}

	var node domain.Node
	err := s.mutate(ctx, projectID, func(sess *Session) error {
		next, id := s.store.AddNode(sess.graph(), t, pos, payload)
		if id == "" {
			return fmt.Errorf("%w: %q", ErrInvalidNodeType, t)
		}
		sess.commit(next, false)
		node, _ = next.Node(id)
		return nil
	})
	return node, err
}

// UpdateNode merges patch into the node's data. skipHistory overwrites the
// present entry, for keystrokes that are committed later as one entry.
func (s *GraphService) UpdateNode(ctx context.Context, projectID, nodeID string, patch domain.Patch, skipHistory bool) (domain.Node, error) {
	var node domain.Node
	err := s.mutate(ctx, projectID, func(sess *Session) error {
		g := sess.graph()
		if !g.HasNode(nodeID) {
			return ErrNodeNotFound
		}
		next, ok := s.store.UpdateNodeData(g, nodeID, patch)
		if !ok {
			return ErrInvalidPatch
		}
		sess.commit(next, skipHistory)
		node, _ = next.Node(nodeID)
		return nil
	})
	return node, err
}

// MoveNode places a node at pos
func (s *GraphService) MoveNode(ctx context.Context, projectID, nodeID string, pos domain.Position, skipHistory bool) (domain.Node, error) {
	var node domain.Node
	err := s.mutate(ctx, projectID, func(sess *Session) error {
		next, ok := s.store.MoveNode(sess.graph(), nodeID, pos)
		if !ok {
			return ErrNodeNotFound
		}
		sess.commit(next, skipHistory)
		node, _ = next.Node(nodeID)
		return nil
	})
	return node, err
}

// DeleteNode removes the node, or the whole selection when the node is part
// of a multi-node selection. Running generations of removed nodes are
// cancelled.
func (s *GraphService) DeleteNode(ctx context.Context, projectID, nodeID string) ([]string, error) {
	var removed []string
	err := s.mutate(ctx, projectID, func(sess *Session) error {
		removed = sess.controller.Delete(nodeID)
		if len(removed) == 0 {
			return ErrNodeNotFound
		}
		sess.cancelTasks(removed)
		return nil
	})
	return removed, err
}

// DuplicateNode copies the node, or the selection it belongs to
func (s *GraphService) DuplicateNode(ctx context.Context, projectID, nodeID string) ([]string, error) {
	var ids []string
	err := s.mutate(ctx, projectID, func(sess *Session) error {
		ids = sess.controller.Duplicate(nodeID)
		if len(ids) == 0 {
			return ErrNodeNotFound
		}
		return nil
	})
	return ids, err
}

// ResetNode clears generated outputs of the node, or of the selection it
// belongs to, and cancels their running generations
func (s *GraphService) ResetNode(ctx context.Context, projectID, nodeID string) ([]string, error) {
	var ids []string
	err := s.mutate(ctx, projectID, func(sess *Session) error {
		ids = sess.controller.Targets(nodeID)
		sess.cancelTasks(ids)
		ids = sess.controller.Reset(nodeID)
		if len(ids) == 0 {
			return ErrNodeNotFound
		}
		return nil
	})
	return ids, err
}

// SelectNode applies a click on a node to the selection and returns it
func (s *GraphService) SelectNode(ctx context.Context, projectID, nodeID string, modified bool) ([]string, error) {
	var selection []string
	err := s.withSession(ctx, projectID, func(sess *Session) error {
		if !sess.graph().HasNode(nodeID) {
			return ErrNodeNotFound
		}
		sess.controller.Click(nodeID, modified)
		selection = sess.controller.Selection()
		return nil
	})
	return selection, err
}

// ClearSelection empties the selection
func (s *GraphService) ClearSelection(ctx context.Context, projectID string) error {
	return s.withSession(ctx, projectID, func(sess *Session) error {
		sess.controller.ClearSelection()
		return nil
	})
}

// Geometry resolves the handle anchors of a node
func (s *GraphService) Geometry(ctx context.Context, projectID, nodeID string) (layout.Geometry, error) {
	var geo layout.Geometry
	err := s.withSession(ctx, projectID, func(sess *Session) error {
		n, ok := sess.graph().Node(nodeID)
		if !ok {
			return ErrNodeNotFound
		}
		geo = layout.Resolve(n, n.State().Minimized)
		return nil
	})
	return geo, err
}

// SetLayoutCache stores measured handle offsets for a node. The cache is
// derived data and never creates an undo entry.
func (s *GraphService) SetLayoutCache(ctx context.Context, projectID, nodeID string, cache domain.LayoutCache) error {
	return s.withSession(ctx, projectID, func(sess *Session) error {
		next, ok := s.store.SetLayoutCache(sess.graph(), nodeID, cache)
		if !ok {
			return ErrNodeNotFound
		}
		sess.commit(next, true)
		return nil
	})
}

// ============================================================================
// Connections
// ============================================================================

// Connect adds a connection. With replace set an occupied input is rewired
// to the new writer; otherwise it is rejected with graphstore.ErrInputOccupied.
func (s *GraphService) Connect(ctx context.Context, projectID, fromNode, fromHandle, toNode, toHandle string, replace bool) (domain.Connection, error) {
	var conn domain.Connection
	err := s.mutate(ctx, projectID, func(sess *Session) error {
		g := sess.graph()
		err := graphstore.CheckConnection(g, fromNode, fromHandle, toNode, toHandle)
		var next domain.Graph
		var id string
		switch {
		case err == nil:
			next, id = s.store.AddConnection(g, fromNode, fromHandle, toNode, toHandle)
		case errors.Is(err, graphstore.ErrInputOccupied) && replace:
			next, id = s.store.ReplaceConnection(g, fromNode, fromHandle, toNode, toHandle)
		default:
			return err
		}
		if id == "" {
			return graphstore.ErrIncompatibleHandles
		}
		sess.commit(next, false)
		conn, _ = next.Connection(id)
		return nil
	})
	return conn, err
}

// Disconnect removes a connection
func (s *GraphService) Disconnect(ctx context.Context, projectID, connectionID string) error {
	return s.mutate(ctx, projectID, func(sess *Session) error {
		next, ok := s.store.RemoveConnection(sess.graph(), connectionID)
		if !ok {
			return ErrConnectionNotFound
		}
		sess.commit(next, false)
		return nil
	})
}

// Stale returns the connections attached to handles that are currently hidden
func (s *GraphService) Stale(ctx context.Context, projectID string) ([]domain.Connection, error) {
	var stale []domain.Connection
	err := s.withSession(ctx, projectID, func(sess *Session) error {
		stale = layout.Stale(sess.graph())
		return nil
	})
	return stale, err
}

// ============================================================================
// Import / Export
// ============================================================================

// Export writes the project graph in format
func (s *GraphService) Export(ctx context.Context, projectID, format string, w io.Writer) error {
	c, err := codec.ForFormat(format)
	if err != nil {
		return err
	}
	var g domain.Graph
	if err := s.withSession(ctx, projectID, func(sess *Session) error {
		g = sess.graph()
		return nil
	}); err != nil {
		return err
	}
	return c.Export(g, w)
}

// Import replaces the project graph with a document in format and starts a
// fresh history
func (s *GraphService) Import(ctx context.Context, projectID, format string, r io.Reader) (Snapshot, error) {
	c, err := codec.ForFormat(format)
	if err != nil {
		return Snapshot{}, err
	}
	g, err := c.Parse(r)
	if err != nil {
		return Snapshot{}, err
	}
	return s.load(ctx, projectID, g)
}

// load replaces the session graph and discards its history
func (s *GraphService) load(ctx context.Context, projectID string, g domain.Graph) (Snapshot, error) {
	var snap Snapshot
	err := s.mutate(ctx, projectID, func(sess *Session) error {
		sess.cancelAll()
		sess.controller.Cancel()
		sess.controller.ClearSelection()
		sess.history.Reset(s.store.Sanitize(g))
		sess.settleLoading(s.store)
		snap = sess.snapshot()
		return nil
	})
	return snap, err
}

// ============================================================================
// Templates
// ============================================================================

// Templates lists the available workflow templates
func (s *GraphService) Templates() []*loader.Template {
	if s.templates == nil {
		return []*loader.Template{}
	}
	return s.templates.List()
}

// ApplyTemplate loads a template into a project with fresh ids and starts a
// fresh history
func (s *GraphService) ApplyTemplate(ctx context.Context, projectID, name string) (Snapshot, error) {
	if s.templates == nil {
		return Snapshot{}, ErrTemplateNotFound
	}
	tmpl, ok := s.templates.Get(name)
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	return s.load(ctx, projectID, tmpl.Instantiate(s.newID))
}

// ReloadTemplates rereads the template directory
func (s *GraphService) ReloadTemplates() error {
	if s.templates == nil {
		return nil
	}
	if err := s.templates.Reload(); err != nil {
		return err
	}
	s.eventBus.Publish(Event{
		Type:    EventTemplatesReloaded,
		Payload: map[string]int{"count": len(s.templates.List())},
	})
	return nil
}

// ============================================================================
// Gallery
// ============================================================================

// Assets returns the generated media recorded for a project
func (s *GraphService) Assets(ctx context.Context, projectID string) ([]repository.Asset, error) {
	return s.repo.ListAssets(ctx, projectID)
}
