// Package checkpoint persists the active document into its durable canvas
// record, either eagerly or on a fingerprint-gated timer.
package checkpoint

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/excalidraw-organizer/backend/internal/catalog"
	"github.com/excalidraw-organizer/backend/internal/workspace"
)

var (
	errMissingCatalog   = errors.New("checkpoint: catalog service is required")
	errMissingWorkspace = errors.New("checkpoint: workspace accessor is required")
)

// SaverConfig describes the dependencies of a Saver.
type SaverConfig struct {
	Catalog   *catalog.Service
	Workspace *workspace.Accessor
	Logger    *zap.Logger
}

// Saver writes the active document into the durable store when its scene
// fingerprint differs from the last persisted one.
type Saver struct {
	catalog *catalog.Service
	ws      *workspace.Accessor
	logger  *zap.Logger
}

// NewSaver validates the configuration and returns a Saver.
func NewSaver(cfg SaverConfig) (*Saver, error) {
	if cfg.Catalog == nil {
		return nil, errMissingCatalog
	}
	if cfg.Workspace == nil {
		return nil, errMissingWorkspace
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Saver{catalog: cfg.Catalog, ws: cfg.Workspace, logger: logger}, nil
}

// SaveIfChanged checkpoints the active document only when its fingerprint
// moved since the last checkpoint. An unset active pointer is a no-op.
func (s *Saver) SaveIfChanged(ctx context.Context) error {
	if s.catalog == nil {
		return catalog.ErrStoreUnavailable
	}

	doc := s.ws.ReadActiveDocument()
	if doc == nil {
		return nil
	}

	currentVersion := workspace.SceneVersion(doc.Elements)
	if currentVersion == s.ws.LastSavedSceneVersion() {
		return nil
	}
	return s.catalog.SaveActiveCanvas(ctx)
}

// Save checkpoints the active document unconditionally. The switch protocol
// uses it to flush the outgoing document before loading the target.
func (s *Saver) Save(ctx context.Context) error {
	if s.catalog == nil {
		return catalog.ErrStoreUnavailable
	}
	return s.catalog.SaveActiveCanvas(ctx)
}
