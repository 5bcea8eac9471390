// Package tui is a terminal front end for one project. Mouse gestures go
// through the same pointer pipeline remote canvases use, so node drags and
// connection drags behave exactly as they do over HTTP.
package tui

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gdamore/tcell/v2"

	"nodeflow/internal/domain"
	"nodeflow/internal/service"
)

// Canvas renders a project and translates terminal input into service calls
type Canvas struct {
	screen  tcell.Screen
	svc     *service.GraphService
	project string
	logger  *slog.Logger

	view   Viewport
	snap   service.Snapshot
	status string

	// pressed is set between a button-1 press and its release
	pressed bool
	// pressNode is the node whose body or header received the press
	pressNode string
	pressMod  bool
	dragged   bool
	// pending is set while a replacement proposal awaits y/n
	pending bool
}

// New creates a canvas drawing project on screen. The screen must already
// be initialized.
func New(screen tcell.Screen, svc *service.GraphService, project string, logger *slog.Logger) *Canvas {
	if logger == nil {
		logger = slog.Default()
	}
	return &Canvas{
		screen:  screen,
		svc:     svc,
		project: project,
		logger:  logger,
		view:    DefaultViewport(),
	}
}

// Run draws and handles events until the user quits or ctx ends
func (c *Canvas) Run(ctx context.Context) error {
	c.screen.EnableMouse()
	c.screen.Clear()

	events := make(chan tcell.Event, 16)
	quit := make(chan struct{})
	go c.screen.ChannelEvents(events, quit)
	defer close(quit)

	// Graph changes made elsewhere (generation results) trigger a redraw
	changes := make(chan service.Event, 16)
	c.svc.Events().Subscribe(changes)
	defer c.svc.Events().Unsubscribe(changes)

	if err := c.refresh(ctx); err != nil {
		return err
	}
	c.Draw()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if c.HandleEvent(ctx, ev) {
				return nil
			}
		case ev := <-changes:
			if !c.concerns(ev) {
				continue
			}
			if err := c.refresh(ctx); err != nil {
				c.status = err.Error()
			}
		}
		c.Draw()
	}
}

func (c *Canvas) concerns(ev service.Event) bool {
	switch p := ev.Payload.(type) {
	case service.GraphChanged:
		return p.ProjectID == c.project
	case service.GenerationResult:
		return p.ProjectID == c.project
	}
	return false
}

func (c *Canvas) refresh(ctx context.Context) error {
	snap, err := c.svc.Snapshot(ctx, c.project)
	if err != nil {
		return err
	}
	c.snap = snap
	return nil
}

// HandleEvent applies one terminal event and reports whether to quit
func (c *Canvas) HandleEvent(ctx context.Context, ev tcell.Event) bool {
	var err error
	switch ev := ev.(type) {
	case *tcell.EventResize:
		c.screen.Sync()
	case *tcell.EventKey:
		var quit bool
		quit, err = c.handleKey(ctx, ev)
		if quit {
			return true
		}
	case *tcell.EventMouse:
		err = c.handleMouse(ctx, ev)
	}
	if err != nil {
		c.status = err.Error()
		c.logger.Debug("canvas action failed", "error", err)
	}
	if err := c.refresh(ctx); err != nil {
		c.status = err.Error()
	}
	return false
}

func (c *Canvas) handleMouse(ctx context.Context, ev *tcell.EventMouse) error {
	x, y := ev.Position()
	pos := c.view.ToCanvas(x, y)
	hit := HitTest(c.snap.Graph, pos)
	down := ev.Buttons()&tcell.Button1 != 0

	switch {
	case down && !c.pressed:
		c.pressed = true
		c.dragged = false
		c.pressNode = hit.NodeID
		c.pressMod = ev.Modifiers()&(tcell.ModShift|tcell.ModCtrl|tcell.ModMeta) != 0
		_, err := c.pointer(ctx, service.PhaseDown, hit.Target, pos)
		return err

	case down:
		c.dragged = true
		_, err := c.pointer(ctx, service.PhaseMove, hit.Target, pos)
		return err

	case c.pressed:
		c.pressed = false
		res, err := c.pointer(ctx, service.PhaseUp, hit.Target, pos)
		if err != nil {
			return err
		}
		c.report(res)
		if !c.dragged && res.Outcome != "connected" && res.Outcome != "replacement_proposed" {
			return c.click(ctx)
		}
		return nil

	default:
		res, err := c.pointer(ctx, service.PhaseHover, hit.Target, pos)
		if err == nil && res.Hover != nil && res.Hover.Active && !res.Hover.Valid {
			c.status = "incompatible handle"
		}
		return err
	}
}

// click applies a press-and-release without movement to the selection
func (c *Canvas) click(ctx context.Context) error {
	if c.pressNode == "" {
		if c.pressMod {
			return nil
		}
		return c.svc.ClearSelection(ctx, c.project)
	}
	_, err := c.svc.SelectNode(ctx, c.project, c.pressNode, c.pressMod)
	return err
}

func (c *Canvas) pointer(ctx context.Context, phase string, target service.PointerTarget, pos domain.Position) (service.PointerResult, error) {
	return c.svc.Pointer(ctx, c.project, service.PointerEvent{Phase: phase, Target: target, X: pos.X, Y: pos.Y})
}

func (c *Canvas) report(res service.PointerResult) {
	switch res.Outcome {
	case "connected":
		c.status = "connected"
	case "rejected":
		c.status = "rejected: " + res.Reason
	case "replacement_proposed":
		c.pending = true
		c.status = "input already connected, replace? (y/n)"
	case "moved":
		c.status = ""
	}
}

func (c *Canvas) handleKey(ctx context.Context, ev *tcell.EventKey) (bool, error) {
	switch ev.Key() {
	case tcell.KeyCtrlC:
		return true, nil
	case tcell.KeyEscape:
		c.pending = false
		if _, err := c.pointer(ctx, service.PhaseCancel, service.PointerTarget{}, domain.Position{}); err != nil {
			return false, err
		}
		return false, c.svc.ClearSelection(ctx, c.project)
	case tcell.KeyUp:
		c.view = c.view.Pan(0, -2)
		return false, nil
	case tcell.KeyDown:
		c.view = c.view.Pan(0, 2)
		return false, nil
	case tcell.KeyLeft:
		c.view = c.view.Pan(-4, 0)
		return false, nil
	case tcell.KeyRight:
		c.view = c.view.Pan(4, 0)
		return false, nil
	case tcell.KeyDelete, tcell.KeyBackspace, tcell.KeyBackspace2:
		return false, c.onSelection(ctx, c.svc.DeleteNode)
	case tcell.KeyRune:
	default:
		return false, nil
	}

	r := ev.Rune()
	if c.pending {
		switch r {
		case 'y':
			c.pending = false
			res, err := c.pointer(ctx, service.PhaseConfirm, service.PointerTarget{}, domain.Position{})
			c.report(res)
			return false, err
		case 'n':
			c.pending = false
			c.status = ""
			_, err := c.pointer(ctx, service.PhaseDismiss, service.PointerTarget{}, domain.Position{})
			return false, err
		}
	}

	switch r {
	case 'q':
		return true, nil
	case 'u':
		_, moved, err := c.svc.Undo(ctx, c.project)
		if err == nil && !moved {
			c.status = "nothing to undo"
		}
		return false, err
	case 'r':
		_, moved, err := c.svc.Redo(ctx, c.project)
		if err == nil && !moved {
			c.status = "nothing to redo"
		}
		return false, err
	case 's':
		saved, err := c.svc.Save(ctx, c.project)
		switch {
		case err != nil:
		case saved:
			c.status = "saved"
		default:
			c.status = "no changes"
		}
		return false, err
	case 'd':
		return false, c.onSelection(ctx, c.svc.DuplicateNode)
	case 'x':
		return false, c.onSelection(ctx, c.svc.DeleteNode)
	case 'z':
		return false, c.onSelection(ctx, c.svc.ResetNode)
	case 'g':
		return false, c.generateSelection(ctx)
	case 'm':
		return false, c.toggleMinimized(ctx)
	}

	if r >= '1' && r <= '9' {
		i := int(r - '1')
		if i < len(domain.NodeTypes) {
			w, h := c.screen.Size()
			_, err := c.svc.AddNode(ctx, c.project, domain.NodeTypes[i], c.view.ToCanvas(w/3, h/3), nil)
			return false, err
		}
	}
	return false, nil
}

// onSelection runs a selection-aware action on the first selected node
func (c *Canvas) onSelection(ctx context.Context, action func(ctx context.Context, projectID, nodeID string) ([]string, error)) error {
	if len(c.snap.Selection) == 0 {
		c.status = "nothing selected"
		return nil
	}
	_, err := action(ctx, c.project, c.snap.Selection[0])
	return err
}

func (c *Canvas) generateSelection(ctx context.Context) error {
	if len(c.snap.Selection) == 0 {
		c.status = "nothing selected"
		return nil
	}
	started := 0
	for _, id := range c.snap.Selection {
		ok, err := c.svc.Generate(ctx, c.project, id)
		if err != nil {
			return fmt.Errorf("generate %s: %w", id, err)
		}
		if ok {
			started++
		}
	}
	c.status = fmt.Sprintf("generating %d node(s)", started)
	return nil
}

func (c *Canvas) toggleMinimized(ctx context.Context) error {
	for _, id := range c.snap.Selection {
		n, ok := c.snap.Graph.Node(id)
		if !ok {
			continue
		}
		patch := domain.Patch{"minimized": !n.State().Minimized}
		if _, err := c.svc.UpdateNode(ctx, c.project, id, patch, false); err != nil {
			return err
		}
	}
	return nil
}
