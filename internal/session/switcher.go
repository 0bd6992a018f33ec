// Package session implements the switch-active-document protocol: the only
// path that replaces the canvas held in the host editor's ephemeral storage.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/excalidraw-organizer/backend/internal/catalog"
	"github.com/excalidraw-organizer/backend/internal/checkpoint"
	"github.com/excalidraw-organizer/backend/internal/workspace"
)

var (
	errMissingCatalog   = errors.New("session: catalog service is required")
	errMissingWorkspace = errors.New("session: workspace accessor is required")
	errMissingSaver     = errors.New("session: checkpoint saver is required")
	errMissingReloader  = errors.New("session: reloader is required")
)

// Reloader restarts the host document context so the editor re-reads
// ephemeral storage from scratch.
type Reloader interface {
	Reload() error
}

// SwitcherConfig describes the dependencies of a Switcher.
type SwitcherConfig struct {
	Catalog   *catalog.Service
	Workspace *workspace.Accessor
	Saver     *checkpoint.Saver
	Reloader  Reloader
	Logger    *zap.Logger
}

// Switcher performs the switch sequence: flush the outgoing document, load
// the target, suppress the next scheduled checkpoint, install the target as
// active, and reload the host.
type Switcher struct {
	catalog  *catalog.Service
	ws       *workspace.Accessor
	saver    *checkpoint.Saver
	reloader Reloader
	logger   *zap.Logger
}

// NewSwitcher validates the configuration and returns a Switcher.
func NewSwitcher(cfg SwitcherConfig) (*Switcher, error) {
	if cfg.Catalog == nil {
		return nil, errMissingCatalog
	}
	if cfg.Workspace == nil {
		return nil, errMissingWorkspace
	}
	if cfg.Saver == nil {
		return nil, errMissingSaver
	}
	if cfg.Reloader == nil {
		return nil, errMissingReloader
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Switcher{
		catalog:  cfg.Catalog,
		ws:       cfg.Workspace,
		saver:    cfg.Saver,
		reloader: cfg.Reloader,
		logger:   logger,
	}, nil
}

// SwitchTo makes the given canvas the active document. The outgoing
// document is checkpointed first, so an unknown target id aborts the switch
// without losing anything.
func (sw *Switcher) SwitchTo(ctx context.Context, canvasID string) error {
	if err := sw.saver.Save(ctx); err != nil {
		return fmt.Errorf("session: checkpoint outgoing document: %w", err)
	}

	canvas, err := sw.catalog.CanvasByID(ctx, canvasID)
	if err != nil {
		return fmt.Errorf("session: load target canvas: %w", err)
	}

	return sw.install(canvas)
}

// CreateAndSwitch runs the same sequence with the target loaded from a
// brand-new empty canvas attached to the given folder.
func (sw *Switcher) CreateAndSwitch(ctx context.Context, name string, folderID int64) (catalog.Canvas, error) {
	if err := sw.saver.Save(ctx); err != nil {
		return catalog.Canvas{}, fmt.Errorf("session: checkpoint outgoing document: %w", err)
	}

	canvas, err := sw.catalog.CreateCanvas(ctx, name)
	if err != nil {
		return catalog.Canvas{}, fmt.Errorf("session: create canvas: %w", err)
	}
	if err := sw.catalog.AttachCanvas(ctx, folderID, canvas.ID, canvas.Name); err != nil {
		return catalog.Canvas{}, fmt.Errorf("session: attach canvas to folder: %w", err)
	}

	if err := sw.install(canvas); err != nil {
		return catalog.Canvas{}, err
	}
	return canvas, nil
}

// install runs steps 3-6 of the protocol: suppression before the ephemeral
// overwrite, pointer update after it, reload last.
func (sw *Switcher) install(canvas catalog.Canvas) error {
	sw.ws.SuppressNextCheckpoint()

	doc := workspace.Document{
		ID:       canvas.ID,
		Name:     canvas.Name,
		Elements: json.RawMessage(canvas.Elements),
		State:    decodeDocumentState(canvas),
	}
	if err := sw.ws.WriteActiveDocument(doc); err != nil {
		return fmt.Errorf("session: install target document: %w", err)
	}
	sw.ws.SetActiveCanvasID(canvas.ID)
	sw.ws.SetPanelVisible(false)

	sw.logger.Info("active canvas switched",
		zap.String("canvas_id", canvas.ID),
		zap.String("canvas_name", canvas.Name))

	if err := sw.reloader.Reload(); err != nil {
		return fmt.Errorf("session: reload host context: %w", err)
	}
	return nil
}

func decodeDocumentState(canvas catalog.Canvas) workspace.EditorState {
	var state workspace.EditorState
	if err := json.Unmarshal(canvas.DocumentState, &state); err != nil || state == nil {
		state = workspace.EditorState{}
	}
	state.SetName(canvas.Name)
	return state
}
