package service

import (
	"context"
	"errors"
	"fmt"

	"nodeflow/internal/domain"
	"nodeflow/internal/interaction"
)

// ErrInvalidPointer is returned for an unknown pointer phase or target kind
var ErrInvalidPointer = errors.New("invalid pointer event")

// Pointer phases
const (
	PhaseDown    = "down"
	PhaseMove    = "move"
	PhaseUp      = "up"
	PhaseCancel  = "cancel"
	PhaseHover   = "hover"
	PhaseConfirm = "confirm"
	PhaseDismiss = "dismiss"
)

// PointerTarget is the hit-test result reported by a remote canvas
type PointerTarget struct {
	// Kind is canvas, header or handle
	Kind     string `json:"kind"`
	NodeID   string `json:"nodeId,omitempty"`
	HandleID string `json:"handleId,omitempty"`
}

// PointerEvent is one pointer event from a remote canvas
type PointerEvent struct {
	Phase  string        `json:"phase"`
	Target PointerTarget `json:"target"`
	X      float64       `json:"x"`
	Y      float64       `json:"y"`
}

// PointerResult reports what a pointer event did
type PointerResult struct {
	State        string                   `json:"state"`
	Started      bool                     `json:"started,omitempty"`
	Outcome      string                   `json:"outcome,omitempty"`
	NodeID       string                   `json:"nodeId,omitempty"`
	ConnectionID string                   `json:"connectionId,omitempty"`
	Reason       string                   `json:"reason,omitempty"`
	Replacement  *interaction.Replacement `json:"replacement,omitempty"`
	Hover        *interaction.Hover       `json:"hover,omitempty"`
}

var outcomeNames = map[interaction.OutcomeKind]string{
	interaction.OutcomeNone:                "none",
	interaction.OutcomeMoved:               "moved",
	interaction.OutcomeConnected:           "connected",
	interaction.OutcomeRejected:            "rejected",
	interaction.OutcomeReplacementProposed: "replacement_proposed",
	interaction.OutcomeCancelled:           "cancelled",
}

func (t PointerTarget) toInteraction() (interaction.Target, error) {
	switch t.Kind {
	case "", "canvas":
		return interaction.Canvas, nil
	case "header":
		return interaction.Header(t.NodeID), nil
	case "handle":
		return interaction.Handle(t.NodeID, t.HandleID), nil
	}
	return interaction.Target{}, fmt.Errorf("%w: target kind %q", ErrInvalidPointer, t.Kind)
}

// Pointer feeds a pointer event to the project's interaction controller
func (s *GraphService) Pointer(ctx context.Context, projectID string, ev PointerEvent) (PointerResult, error) {
	target, err := ev.Target.toInteraction()
	if err != nil {
		return PointerResult{}, err
	}
	pos := domain.Position{X: ev.X, Y: ev.Y}

	var res PointerResult
	err = s.mutate(ctx, projectID, func(sess *Session) error {
		c := sess.controller
		switch ev.Phase {
		case PhaseDown:
			res.Started = c.PointerDown(target, pos)
		case PhaseMove:
			c.PointerMove(pos)
		case PhaseUp:
			out := c.PointerUp(target, pos)
			res.Outcome = outcomeNames[out.Kind]
			res.NodeID = out.NodeID
			res.ConnectionID = out.ConnectionID
			if out.Reason != nil {
				res.Reason = out.Reason.Error()
			}
			res.Replacement = out.Replacement
		case PhaseCancel:
			c.Cancel()
		case PhaseHover:
			h := c.Hover(target)
			res.Hover = &h
		case PhaseConfirm:
			id, ok := c.ConfirmReplacement()
			if ok {
				res.Outcome = outcomeNames[interaction.OutcomeConnected]
				res.ConnectionID = id
			} else {
				res.Outcome = outcomeNames[interaction.OutcomeNone]
			}
		case PhaseDismiss:
			c.DismissReplacement()
		default:
			return fmt.Errorf("%w: phase %q", ErrInvalidPointer, ev.Phase)
		}
		res.State = c.State().String()
		return nil
	})
	return res, err
}
