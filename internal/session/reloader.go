package session

import (
	"errors"

	"github.com/excalidraw-organizer/backend/internal/workspace"
)

// StorageReloader delivers reload requests through ephemeral storage, where
// the host integration polls for them and restarts the editor page.
type StorageReloader struct {
	Workspace *workspace.Accessor
}

// Reload flags a pending host reload.
func (r StorageReloader) Reload() error {
	if r.Workspace == nil {
		return errors.New("session: storage reloader needs a workspace accessor")
	}
	r.Workspace.RequestHostReload()
	return nil
}
