package service

import (
	"context"
	"slices"
	"sync"

	"nodeflow/internal/domain"
	"nodeflow/internal/graphstore"
	"nodeflow/internal/history"
	"nodeflow/internal/interaction"
)

// Session is the in-memory editing state of one project: its undo history,
// its gesture controller and the generation tasks running for its nodes.
// All fields are guarded by mu.
type Session struct {
	ID string

	mu         sync.Mutex
	history    *history.History[domain.Graph]
	controller *interaction.Controller
	tasks      map[string]*task
	taskSeq    uint64
	saved      string
	closed     bool
}

// task is a running generation for one node
type task struct {
	seq    uint64
	cancel context.CancelFunc
}

// document exposes a session's history to the interaction controller.
// Callers hold the session lock.
type document struct {
	s *Session
}

func (d document) Graph() domain.Graph {
	return d.s.history.Present()
}

func (d document) Apply(next domain.Graph, skipHistory bool) {
	d.s.commit(next, skipHistory)
}

func newSession(id string, g domain.Graph, store *graphstore.Store, capacity int, saved string) *Session {
	s := &Session{
		ID:      id,
		history: history.New(g, domain.Equal, capacity),
		tasks:   make(map[string]*task),
		saved:   saved,
	}
	s.controller = interaction.New(store, document{s: s})
	return s
}

// commit records next as the present graph
func (s *Session) commit(next domain.Graph, skipHistory bool) bool {
	if skipHistory {
		s.history.Set(next, history.SkipHistory())
		historyCommitsTotal.WithLabelValues("transient").Inc()
		return false
	}
	added := s.history.Set(next)
	if added {
		historyCommitsTotal.WithLabelValues("entry").Inc()
	}
	return added
}

func (s *Session) graph() domain.Graph {
	return s.history.Present()
}

// snapshot describes the session for API responses
func (s *Session) snapshot() Snapshot {
	g := s.graph()
	fp := g.Fingerprint()
	generating := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		generating = append(generating, id)
	}
	slices.Sort(generating)
	return Snapshot{
		ProjectID:   s.ID,
		Graph:       g,
		Fingerprint: fp,
		CanUndo:     s.history.CanUndo(),
		CanRedo:     s.history.CanRedo(),
		Dirty:       fp != s.saved,
		Selection:   s.controller.Selection(),
		Generating:  generating,
	}
}

// startTask registers a cancellable task for nodeID, cancelling any task
// already running for it
func (s *Session) startTask(parent context.Context, nodeID string) (context.Context, uint64) {
	s.cancelTask(nodeID)
	ctx, cancel := context.WithCancel(parent)
	s.taskSeq++
	s.tasks[nodeID] = &task{seq: s.taskSeq, cancel: cancel}
	return ctx, s.taskSeq
}

// finishTask removes the task for nodeID if it is still the one numbered seq.
// It reports whether the caller owns the node's result.
func (s *Session) finishTask(nodeID string, seq uint64) bool {
	t, ok := s.tasks[nodeID]
	if !ok || t.seq != seq {
		return false
	}
	t.cancel()
	delete(s.tasks, nodeID)
	return true
}

func (s *Session) cancelTask(nodeID string) {
	if t, ok := s.tasks[nodeID]; ok {
		t.cancel()
		delete(s.tasks, nodeID)
	}
}

func (s *Session) cancelTasks(nodeIDs []string) {
	for _, id := range nodeIDs {
		s.cancelTask(id)
	}
}

func (s *Session) cancelAll() {
	for id := range s.tasks {
		s.cancelTask(id)
	}
}

// settleLoading clears the loading flag of nodes without a running task.
// Undo and redo can restore a snapshot taken while a generation was pending.
func (s *Session) settleLoading(store *graphstore.Store) {
	g := s.graph()
	next := g
	for _, n := range g.Nodes {
		if !n.State().IsLoading {
			continue
		}
		if _, running := s.tasks[n.ID]; running {
			continue
		}
		next, _ = store.UpdateNodeData(next, n.ID, domain.Patch{"isLoading": false})
	}
	if !domain.Equal(g, next) {
		s.commit(next, true)
	}
}

// Snapshot is the externally visible state of a project session
type Snapshot struct {
	ProjectID   string       `json:"projectId"`
	Graph       domain.Graph `json:"graph"`
	Fingerprint string       `json:"fingerprint"`
	CanUndo     bool         `json:"canUndo"`
	CanRedo     bool         `json:"canRedo"`
	// Dirty is set when the graph differs from the last saved or loaded one
	Dirty      bool     `json:"dirty"`
	Selection  []string `json:"selection"`
	Generating []string `json:"generating"`
}
