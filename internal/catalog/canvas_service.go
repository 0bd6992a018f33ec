package catalog

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/excalidraw-organizer/backend/internal/workspace"
)

const (
	opCreateCanvas = "catalog.create_canvas"
	opAttachCanvas = "catalog.attach_canvas"
	opRenameCanvas = "catalog.rename_canvas"
	opDeleteCanvas = "catalog.delete_canvas"
	opMoveCanvas   = "catalog.move_canvas"
	opCanvasByID   = "catalog.canvas_by_id"
	opSaveActive   = "catalog.save_active_canvas"
)

// CreateCanvas inserts a new empty canvas record. The canvas is not attached
// to any folder; callers pair this with AttachCanvas so creation and folder
// assignment form one logical operation.
func (s *Service) CreateCanvas(ctx context.Context, name string) (Canvas, error) {
	if s.db == nil {
		return Canvas{}, newServiceError(opCreateCanvas, reasonStoreUnavailable, ErrStoreUnavailable)
	}
	trimmed, err := validateName(name)
	if err != nil {
		return Canvas{}, newServiceError(opCreateCanvas, reasonInvalidName, err)
	}

	canvasID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateCanvas, reasonIDGenerationFailed, err)
		return Canvas{}, newServiceError(opCreateCanvas, reasonIDGenerationFailed, err)
	}

	now := s.timestamp()
	canvas := Canvas{
		ID:            canvasID,
		Name:          trimmed,
		Elements:      datatypes.JSON("[]"),
		DocumentState: documentStateWithName(nil, trimmed),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.db.WithContext(ctx).Create(&canvas).Error; err != nil {
		s.logError(opCreateCanvas, reasonCanvasInsertFailed, err, zap.String(fieldCanvasID, canvasID))
		return Canvas{}, newServiceError(opCreateCanvas, reasonCanvasInsertFailed, err)
	}
	return canvas, nil
}

// AttachCanvas appends a canvas entry to a folder's cache.
func (s *Service) AttachCanvas(ctx context.Context, folderID int64, canvasID, canvasName string) error {
	if s.db == nil {
		return newServiceError(opAttachCanvas, reasonStoreUnavailable, ErrStoreUnavailable)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		folder, err := loadFolder(tx, folderID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opAttachCanvas, reasonFolderNotFound, ErrNotFound)
		}
		if err != nil {
			s.logError(opAttachCanvas, reasonFolderLookupFailed, err, zap.Int64(fieldFolderID, folderID))
			return newServiceError(opAttachCanvas, reasonFolderLookupFailed, err)
		}
		if folder.HasCanvas(canvasID) {
			return nil
		}

		refs := append(folder.Refs(), CanvasRef{CanvasID: canvasID, CanvasName: canvasName})
		folder.Canvases = datatypes.NewJSONType(refs)
		folder.UpdatedAt = s.timestamp()
		if err := tx.Save(&folder).Error; err != nil {
			s.logError(opAttachCanvas, reasonFolderSaveFailed, err, zap.Int64(fieldFolderID, folderID))
			return newServiceError(opAttachCanvas, reasonFolderSaveFailed, err)
		}
		return nil
	})
}

// RenameCanvas updates a canvas's name in every place it is replicated: the
// record itself, its documentState snapshot, the owning folder's cache
// entry, and, when the canvas is active, the editor state in ephemeral
// storage. Record and cache are written in one transaction. The caller
// supplies the owning folder since canvas records carry no back-reference.
func (s *Service) RenameCanvas(ctx context.Context, folderID int64, canvasID, newName string) (Canvas, error) {
	if s.db == nil {
		return Canvas{}, newServiceError(opRenameCanvas, reasonStoreUnavailable, ErrStoreUnavailable)
	}
	trimmed, err := validateName(newName)
	if err != nil {
		return Canvas{}, newServiceError(opRenameCanvas, reasonInvalidName, err)
	}

	var renamed Canvas
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		canvas, err := loadCanvas(tx, canvasID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opRenameCanvas, reasonCanvasNotFound, ErrNotFound)
		}
		if err != nil {
			s.logError(opRenameCanvas, reasonCanvasLookupFailed, err, zap.String(fieldCanvasID, canvasID))
			return newServiceError(opRenameCanvas, reasonCanvasLookupFailed, err)
		}

		canvas.Name = trimmed
		canvas.DocumentState = documentStateWithName(canvas.DocumentState, trimmed)
		canvas.UpdatedAt = s.timestamp()
		if err := tx.Save(&canvas).Error; err != nil {
			s.logError(opRenameCanvas, reasonCanvasSaveFailed, err, zap.String(fieldCanvasID, canvasID))
			return newServiceError(opRenameCanvas, reasonCanvasSaveFailed, err)
		}

		folder, err := loadFolder(tx, folderID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opRenameCanvas, reasonFolderNotFound, ErrNotFound)
		}
		if err != nil {
			s.logError(opRenameCanvas, reasonFolderLookupFailed, err, zap.Int64(fieldFolderID, folderID))
			return newServiceError(opRenameCanvas, reasonFolderLookupFailed, err)
		}

		refs := folder.Refs()
		for i, ref := range refs {
			if ref.CanvasID == canvasID {
				refs[i].CanvasName = trimmed
			}
		}
		folder.Canvases = datatypes.NewJSONType(refs)
		folder.UpdatedAt = s.timestamp()
		if err := tx.Save(&folder).Error; err != nil {
			s.logError(opRenameCanvas, reasonFolderSaveFailed, err, zap.Int64(fieldFolderID, folderID))
			return newServiceError(opRenameCanvas, reasonFolderSaveFailed, err)
		}

		renamed = canvas
		return nil
	})
	if txErr != nil {
		return Canvas{}, txErr
	}

	if s.ws.ActiveCanvasID() == canvasID {
		if err := s.ws.SetActiveDocumentName(trimmed); err != nil {
			s.logError(opRenameCanvas, reasonWorkspaceSyncFailed, err, zap.String(fieldCanvasID, canvasID))
			return Canvas{}, newServiceError(opRenameCanvas, reasonWorkspaceSyncFailed, err)
		}
	}
	return renamed, nil
}

// DeleteCanvas removes a canvas record and strips its entry from the
// selected folder's cache in one transaction. Deleting the active canvas is
// rejected at this layer regardless of any UI-side check.
func (s *Service) DeleteCanvas(ctx context.Context, canvasID string) error {
	if s.db == nil {
		return newServiceError(opDeleteCanvas, reasonStoreUnavailable, ErrStoreUnavailable)
	}
	if canvasID != "" && canvasID == s.ws.ActiveCanvasID() {
		return newServiceError(opDeleteCanvas, reasonCanvasActive, ErrActiveResourceInUse)
	}

	folderID := s.ws.SelectedFolderID()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		canvas, err := loadCanvas(tx, canvasID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opDeleteCanvas, reasonCanvasNotFound, ErrNotFound)
		}
		if err != nil {
			s.logError(opDeleteCanvas, reasonCanvasLookupFailed, err, zap.String(fieldCanvasID, canvasID))
			return newServiceError(opDeleteCanvas, reasonCanvasLookupFailed, err)
		}
		if err := tx.Delete(&canvas).Error; err != nil {
			s.logError(opDeleteCanvas, reasonCanvasDeleteFailed, err, zap.String(fieldCanvasID, canvasID))
			return newServiceError(opDeleteCanvas, reasonCanvasDeleteFailed, err)
		}

		folder, err := loadFolder(tx, folderID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn("selected folder missing during canvas delete",
				zap.Int64(fieldFolderID, folderID),
				zap.String(fieldCanvasID, canvasID))
			return nil
		}
		if err != nil {
			s.logError(opDeleteCanvas, reasonFolderLookupFailed, err, zap.Int64(fieldFolderID, folderID))
			return newServiceError(opDeleteCanvas, reasonFolderLookupFailed, err)
		}

		refs := folder.Refs()
		remaining := make([]CanvasRef, 0, len(refs))
		for _, ref := range refs {
			if ref.CanvasID != canvasID {
				remaining = append(remaining, ref)
			}
		}
		if len(remaining) == len(refs) {
			return nil
		}
		folder.Canvases = datatypes.NewJSONType(remaining)
		folder.UpdatedAt = s.timestamp()
		if err := tx.Save(&folder).Error; err != nil {
			s.logError(opDeleteCanvas, reasonFolderSaveFailed, err, zap.Int64(fieldFolderID, folderID))
			return newServiceError(opDeleteCanvas, reasonFolderSaveFailed, err)
		}
		return nil
	})
}

// MoveCanvas transfers a cache entry between two folders atomically, copying
// the cached name from the source entry. A missing folder or a canvas not
// listed in the source is a silent no-op; after the move the canvas appears
// in exactly one folder's cache.
func (s *Service) MoveCanvas(ctx context.Context, fromFolderID, toFolderID int64, canvasID string) error {
	if s.db == nil {
		return newServiceError(opMoveCanvas, reasonStoreUnavailable, ErrStoreUnavailable)
	}
	if fromFolderID == toFolderID {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fromFolder, err := loadFolder(tx, fromFolderID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Debug("move skipped, source folder missing", zap.Int64(fieldFolderID, fromFolderID))
			return nil
		}
		if err != nil {
			s.logError(opMoveCanvas, reasonFolderLookupFailed, err, zap.Int64(fieldFolderID, fromFolderID))
			return newServiceError(opMoveCanvas, reasonFolderLookupFailed, err)
		}
		toFolder, err := loadFolder(tx, toFolderID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Debug("move skipped, target folder missing", zap.Int64(fieldFolderID, toFolderID))
			return nil
		}
		if err != nil {
			s.logError(opMoveCanvas, reasonFolderLookupFailed, err, zap.Int64(fieldFolderID, toFolderID))
			return newServiceError(opMoveCanvas, reasonFolderLookupFailed, err)
		}

		var moved *CanvasRef
		remaining := make([]CanvasRef, 0, len(fromFolder.Refs()))
		for _, ref := range fromFolder.Refs() {
			if ref.CanvasID == canvasID {
				copied := ref
				moved = &copied
				continue
			}
			remaining = append(remaining, ref)
		}
		if moved == nil {
			s.logger.Debug("move skipped, canvas not in source folder",
				zap.Int64(fieldFolderID, fromFolderID),
				zap.String(fieldCanvasID, canvasID))
			return nil
		}

		now := s.timestamp()
		toFolder.Canvases = datatypes.NewJSONType(append(toFolder.Refs(), *moved))
		toFolder.UpdatedAt = now
		if err := tx.Save(&toFolder).Error; err != nil {
			s.logError(opMoveCanvas, reasonFolderSaveFailed, err, zap.Int64(fieldFolderID, toFolderID))
			return newServiceError(opMoveCanvas, reasonFolderSaveFailed, err)
		}

		fromFolder.Canvases = datatypes.NewJSONType(remaining)
		fromFolder.UpdatedAt = now
		if err := tx.Save(&fromFolder).Error; err != nil {
			s.logError(opMoveCanvas, reasonFolderSaveFailed, err, zap.Int64(fieldFolderID, fromFolderID))
			return newServiceError(opMoveCanvas, reasonFolderSaveFailed, err)
		}
		return nil
	})
}

// CanvasByID returns the canvas record with the given id.
func (s *Service) CanvasByID(ctx context.Context, canvasID string) (Canvas, error) {
	if s.db == nil {
		return Canvas{}, newServiceError(opCanvasByID, reasonStoreUnavailable, ErrStoreUnavailable)
	}
	canvas, err := loadCanvas(s.db.WithContext(ctx), canvasID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Canvas{}, newServiceError(opCanvasByID, reasonCanvasNotFound, ErrNotFound)
	}
	if err != nil {
		s.logError(opCanvasByID, reasonCanvasLookupFailed, err, zap.String(fieldCanvasID, canvasID))
		return Canvas{}, newServiceError(opCanvasByID, reasonCanvasLookupFailed, err)
	}
	return canvas, nil
}

// SaveActiveCanvas checkpoints the active document into its durable record:
// elements and documentState are overwritten, updated_at refreshed, and the
// scene fingerprint recorded as the last saved version. An unset pointer or
// a record the pointer no longer resolves to is a no-op, not an error.
func (s *Service) SaveActiveCanvas(ctx context.Context) error {
	if s.db == nil {
		return newServiceError(opSaveActive, reasonStoreUnavailable, ErrStoreUnavailable)
	}

	doc := s.ws.ReadActiveDocument()
	if doc == nil {
		return nil
	}

	saved := false
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		canvas, err := loadCanvas(tx, doc.ID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Debug("active canvas has no durable record, skipping checkpoint",
				zap.String(fieldCanvasID, doc.ID))
			return nil
		}
		if err != nil {
			s.logError(opSaveActive, reasonCanvasLookupFailed, err, zap.String(fieldCanvasID, doc.ID))
			return newServiceError(opSaveActive, reasonCanvasLookupFailed, err)
		}

		stateName := doc.Name
		if stateName == "" {
			stateName = canvas.Name
		}
		canvas.Elements = datatypes.JSON(doc.Elements)
		canvas.DocumentState = documentStateFromEditor(doc.State, stateName)
		canvas.UpdatedAt = s.timestamp()
		if err := tx.Save(&canvas).Error; err != nil {
			s.logError(opSaveActive, reasonCanvasSaveFailed, err, zap.String(fieldCanvasID, doc.ID))
			return newServiceError(opSaveActive, reasonCanvasSaveFailed, err)
		}
		saved = true
		return nil
	})
	if txErr != nil {
		return txErr
	}
	if saved {
		s.ws.SetLastSavedSceneVersion(workspace.SceneVersion(doc.Elements))
	}
	return nil
}
