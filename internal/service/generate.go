package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"nodeflow/internal/adapter"
	"nodeflow/internal/domain"
	"nodeflow/internal/repository"
)

// Generate starts generation for a node. The node is marked loading right
// away and the result or error is merged into it when the generator
// settles, provided the node still exists. It reports whether a task was
// started; missing inputs and unserved node types are written into the
// node's error field instead.
func (s *GraphService) Generate(ctx context.Context, projectID, nodeID string) (bool, error) {
	var started bool
	err := s.mutate(ctx, projectID, func(sess *Session) error {
		g := sess.graph()
		n, ok := g.Node(nodeID)
		if !ok {
			return ErrNodeNotFound
		}
		if !n.Type.Generative() {
			return adapter.ErrUnsupported
		}

		req, err := adapter.BuildRequest(projectID, n, g.ResolveInputs(nodeID))
		var gen adapter.Generator
		if err == nil {
			gen, err = s.generators.For(n.Type)
		}
		if err != nil {
			s.logger.Info("generation not started", "project", projectID, "node", nodeID, "error", err)
			next, _ := s.store.UpdateNodeData(g, nodeID, domain.Patch{"isLoading": false, "error": err.Error()})
			sess.commit(next, false)
			return nil
		}

		next, _ := s.store.UpdateNodeData(g, nodeID, domain.Patch{"isLoading": true, "error": ""})
		sess.commit(next, true)

		taskCtx, seq := sess.startTask(s.ctx, nodeID)
		s.wg.Add(1)
		generationsInFlight.Inc()
		go s.runGeneration(taskCtx, sess, gen, req, seq)
		started = true
		return nil
	})
	return started, err
}

// runGeneration calls the generator and merges its answer into the node
func (s *GraphService) runGeneration(ctx context.Context, sess *Session, gen adapter.Generator, req adapter.Request, seq uint64) {
	defer s.wg.Done()
	defer generationsInFlight.Dec()

	nodeType := string(req.NodeType)
	start := time.Now()
	out, genErr := gen.Generate(ctx, req)
	elapsed := time.Since(start)
	generationDuration.WithLabelValues(nodeType).Observe(elapsed.Seconds())

	logger := s.logger.With("project", req.ProjectID, "node", req.NodeID, "generator", gen.Name())
	if s.settle(sess, req, out, genErr, seq, logger) {
		logger.Info("generation finished", "duration", elapsed)
		s.recordAssets(req, out)
	}
}

// settle merges a generator answer into the session. It reports whether a
// successful result was applied.
func (s *GraphService) settle(sess *Session, req adapter.Request, out domain.Output, genErr error, seq uint64, logger *slog.Logger) bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	nodeType := string(req.NodeType)

	if !sess.finishTask(req.NodeID, seq) || sess.closed {
		// deleted, reset, regenerated or project closed meanwhile
		generationsTotal.WithLabelValues(nodeType, outcomeCancelled).Inc()
		logger.Debug("generation result dropped")
		return false
	}
	if genErr != nil && errors.Is(genErr, context.Canceled) {
		generationsTotal.WithLabelValues(nodeType, outcomeCancelled).Inc()
		return false
	}

	g := sess.graph()
	if genErr != nil {
		next, ok := s.store.UpdateNodeData(g, req.NodeID, domain.Patch{"isLoading": false, "error": genErr.Error()})
		if !ok {
			generationsTotal.WithLabelValues(nodeType, outcomeDiscarded).Inc()
			return false
		}
		sess.commit(next, false)
		generationsTotal.WithLabelValues(nodeType, outcomeFailure).Inc()
		logger.Warn("generation failed", "error", genErr)

		s.publishChanged(sess)
		s.eventBus.Publish(Event{
			Type:    EventGenerationFailed,
			Payload: GenerationResult{ProjectID: req.ProjectID, NodeID: req.NodeID, Error: genErr.Error()},
		})
		return false
	}

	next, ok := s.store.ApplyOutput(g, req.NodeID, out)
	if !ok {
		// the node was removed while the generator ran
		generationsTotal.WithLabelValues(nodeType, outcomeDiscarded).Inc()
		logger.Debug("generation result for missing node discarded")
		return false
	}
	sess.commit(next, false)
	generationsTotal.WithLabelValues(nodeType, outcomeSuccess).Inc()

	s.publishChanged(sess)
	s.eventBus.Publish(Event{
		Type:    EventNodeGenerated,
		Payload: GenerationResult{ProjectID: req.ProjectID, NodeID: req.NodeID},
	})
	return true
}

// recordAssets adds the media of a generation to the project's gallery.
// Failures are logged; the graph already holds the URLs.
func (s *GraphService) recordAssets(req adapter.Request, out domain.Output) {
	kind := domain.HandleTypeImage
	if req.NodeType == domain.NodeTypeVideoGenerator {
		kind = domain.HandleTypeVideo
	}

	urls := append([]string(nil), out.Media...)
	for _, c := range out.Characters {
		if c.ImageURL != "" {
			urls = append(urls, c.ImageURL)
		}
	}
	if len(urls) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, url := range urls {
		err := s.repo.SaveAsset(ctx, repository.Asset{
			ID:        s.newID(),
			ProjectID: req.ProjectID,
			NodeID:    req.NodeID,
			Kind:      kind,
			URL:       url,
		})
		if errors.Is(err, repository.ErrProjectNotFound) {
			s.logger.Debug("asset not recorded for unsaved project", "project", req.ProjectID)
			return
		}
		if err != nil {
			s.logger.Warn("failed to record asset", "project", req.ProjectID, "url", url, "error", err)
		}
	}
}
