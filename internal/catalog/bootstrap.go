package catalog

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	opBootstrap = "catalog.bootstrap"

	reasonBootstrapCheckFailed = "bootstrap_check_failed"
)

// Bootstrap performs first-run initialization: when the Default folder does
// not exist yet, it snapshots the current active document into a new canvas
// record, creates the Default folder referencing it, and installs the
// active-document pointers. Running it against an already-initialized store
// is a no-op, both writes happen in one transaction, and the pointers are
// only touched after that transaction commits.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.db == nil {
		return newServiceError(opBootstrap, reasonStoreUnavailable, ErrStoreUnavailable)
	}

	created := false
	var seeded Canvas
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := loadFolder(tx, DefaultFolderID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logError(opBootstrap, reasonBootstrapCheckFailed, err)
			return newServiceError(opBootstrap, reasonBootstrapCheckFailed, err)
		}

		doc, err := s.ws.AssignIdentityIfMissing()
		if err != nil {
			s.logError(opBootstrap, reasonWorkspaceReadFailed, err)
			return newServiceError(opBootstrap, reasonWorkspaceReadFailed, err)
		}

		now := s.timestamp()
		canvas := Canvas{
			ID:            doc.ID,
			Name:          doc.Name,
			Elements:      datatypes.JSON(doc.Elements),
			DocumentState: documentStateFromEditor(doc.State, doc.Name),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Create(&canvas).Error; err != nil {
			s.logError(opBootstrap, reasonCanvasInsertFailed, err, zap.String(fieldCanvasID, doc.ID))
			return newServiceError(opBootstrap, reasonCanvasInsertFailed, err)
		}

		folder := Folder{
			ID:   DefaultFolderID,
			Name: DefaultFolderName,
			Canvases: datatypes.NewJSONType([]CanvasRef{
				{CanvasID: doc.ID, CanvasName: doc.Name},
			}),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Create(&folder).Error; err != nil {
			s.logError(opBootstrap, reasonFolderInsertFailed, err)
			return newServiceError(opBootstrap, reasonFolderInsertFailed, err)
		}

		seeded = canvas
		created = true
		return nil
	})
	if txErr != nil {
		return txErr
	}

	if created {
		s.ws.SetSelectedFolderID(DefaultFolderID)
		s.ws.SetActiveCanvasID(seeded.ID)
		s.logger.Info("default folder bootstrapped",
			zap.String(fieldCanvasID, seeded.ID),
			zap.String("canvas_name", seeded.Name))
	}
	return nil
}
