package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/excalidraw-organizer/backend/internal/workspace"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingWorkspace  = errors.New("workspace accessor is required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew     = "catalog.service.new"
	opCreateFolder   = "catalog.create_folder"
	opRenameFolder   = "catalog.rename_folder"
	opDeleteFolder   = "catalog.delete_folder"
	opListFolders    = "catalog.list_folders"
	opFolderByName   = "catalog.folder_by_name"
	opFolderCanvases = "catalog.folder_canvases"

	fieldFolderID = "folder_id"
	fieldCanvasID = "canvas_id"

	queryByID   = "id = ?"
	queryByName = "name = ?"

	reasonStoreUnavailable    = "store_unavailable"
	reasonInvalidName         = "invalid_name"
	reasonFolderLookupFailed  = "folder_lookup_failed"
	reasonFolderNotFound      = "folder_not_found"
	reasonFolderSaveFailed    = "folder_save_failed"
	reasonFolderDeleteFailed  = "folder_delete_failed"
	reasonFolderInsertFailed  = "folder_insert_failed"
	reasonFolderProtected     = "folder_protected"
	reasonCanvasLookupFailed  = "canvas_lookup_failed"
	reasonCanvasNotFound      = "canvas_not_found"
	reasonCanvasSaveFailed    = "canvas_save_failed"
	reasonCanvasDeleteFailed  = "canvas_delete_failed"
	reasonCanvasInsertFailed  = "canvas_insert_failed"
	reasonCanvasActive        = "canvas_active"
	reasonIDGenerationFailed  = "id_generation_failed"
	reasonQueryFailed         = "query_failed"
	reasonWorkspaceReadFailed = "workspace_read_failed"
	reasonWorkspaceSyncFailed = "workspace_sync_failed"
)

// IDProvider issues identifiers for new canvas records.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the directory service.
type ServiceConfig struct {
	Database   *gorm.DB
	Workspace  *workspace.Accessor
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service enforces referential consistency between folders and canvases:
// every canvas record is listed in exactly one folder cache, the Default
// folder always exists and can never be deleted, and writes that touch both
// collections run inside a single transaction.
type Service struct {
	db         *gorm.DB
	ws         *workspace.Accessor
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService validates the configuration and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Workspace == nil {
		return nil, newServiceError(opServiceNew, "missing_workspace", errMissingWorkspace)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		ws:         cfg.Workspace,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// CreateFolder inserts a new empty folder. Names need not be unique.
func (s *Service) CreateFolder(ctx context.Context, name string) (Folder, error) {
	if s.db == nil {
		return Folder{}, newServiceError(opCreateFolder, reasonStoreUnavailable, ErrStoreUnavailable)
	}
	trimmed, err := validateName(name)
	if err != nil {
		return Folder{}, newServiceError(opCreateFolder, reasonInvalidName, err)
	}

	now := s.timestamp()
	folder := Folder{
		Name:      trimmed,
		Canvases:  datatypes.NewJSONType([]CanvasRef{}),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&folder).Error; err != nil {
		s.logError(opCreateFolder, reasonFolderInsertFailed, err)
		return Folder{}, newServiceError(opCreateFolder, reasonFolderInsertFailed, err)
	}
	return folder, nil
}

// RenameFolder updates a folder's name. Renaming the Default folder is
// allowed; only its deletion is protected.
func (s *Service) RenameFolder(ctx context.Context, folderID int64, newName string) (Folder, error) {
	if s.db == nil {
		return Folder{}, newServiceError(opRenameFolder, reasonStoreUnavailable, ErrStoreUnavailable)
	}
	trimmed, err := validateName(newName)
	if err != nil {
		return Folder{}, newServiceError(opRenameFolder, reasonInvalidName, err)
	}

	var renamed Folder
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		folder, err := loadFolder(tx, folderID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opRenameFolder, reasonFolderNotFound, ErrNotFound)
		}
		if err != nil {
			s.logError(opRenameFolder, reasonFolderLookupFailed, err, zap.Int64(fieldFolderID, folderID))
			return newServiceError(opRenameFolder, reasonFolderLookupFailed, err)
		}

		folder.Name = trimmed
		folder.UpdatedAt = s.timestamp()
		if err := tx.Save(&folder).Error; err != nil {
			s.logError(opRenameFolder, reasonFolderSaveFailed, err, zap.Int64(fieldFolderID, folderID))
			return newServiceError(opRenameFolder, reasonFolderSaveFailed, err)
		}
		renamed = folder
		return nil
	})
	if txErr != nil {
		return Folder{}, txErr
	}
	return renamed, nil
}

// DeleteFolder removes a folder and every canvas it lists, atomically. The
// Default folder is protected, and a folder whose cache contains the active
// canvas is rejected before any write so the open document cannot be
// deleted out from under the user.
func (s *Service) DeleteFolder(ctx context.Context, folderID int64) error {
	if s.db == nil {
		return newServiceError(opDeleteFolder, reasonStoreUnavailable, ErrStoreUnavailable)
	}
	if folderID == DefaultFolderID {
		return newServiceError(opDeleteFolder, reasonFolderProtected, ErrProtectedResource)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		folder, err := loadFolder(tx, folderID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opDeleteFolder, reasonFolderNotFound, ErrNotFound)
		}
		if err != nil {
			s.logError(opDeleteFolder, reasonFolderLookupFailed, err, zap.Int64(fieldFolderID, folderID))
			return newServiceError(opDeleteFolder, reasonFolderLookupFailed, err)
		}

		activeCanvasID := s.ws.ActiveCanvasID()
		if activeCanvasID != "" && folder.HasCanvas(activeCanvasID) {
			return newServiceError(opDeleteFolder, reasonCanvasActive, ErrActiveResourceInUse)
		}

		for _, ref := range folder.Refs() {
			if err := tx.Where(queryByID, ref.CanvasID).Delete(&Canvas{}).Error; err != nil {
				s.logError(opDeleteFolder, reasonCanvasDeleteFailed, err,
					zap.Int64(fieldFolderID, folderID),
					zap.String(fieldCanvasID, ref.CanvasID))
				return newServiceError(opDeleteFolder, reasonCanvasDeleteFailed, err)
			}
		}

		if err := tx.Delete(&folder).Error; err != nil {
			s.logError(opDeleteFolder, reasonFolderDeleteFailed, err, zap.Int64(fieldFolderID, folderID))
			return newServiceError(opDeleteFolder, reasonFolderDeleteFailed, err)
		}
		return nil
	})
}

// Folders returns every folder ordered by id.
func (s *Service) Folders(ctx context.Context) ([]Folder, error) {
	if s.db == nil {
		return nil, newServiceError(opListFolders, reasonStoreUnavailable, ErrStoreUnavailable)
	}
	var folders []Folder
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&folders).Error; err != nil {
		s.logError(opListFolders, reasonQueryFailed, err)
		return nil, newServiceError(opListFolders, reasonQueryFailed, err)
	}
	return folders, nil
}

// FolderByID returns the folder with the given id.
func (s *Service) FolderByID(ctx context.Context, folderID int64) (Folder, error) {
	if s.db == nil {
		return Folder{}, newServiceError(opFolderByName, reasonStoreUnavailable, ErrStoreUnavailable)
	}
	folder, err := loadFolder(s.db.WithContext(ctx), folderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Folder{}, newServiceError(opFolderByName, reasonFolderNotFound, ErrNotFound)
	}
	if err != nil {
		s.logError(opFolderByName, reasonFolderLookupFailed, err, zap.Int64(fieldFolderID, folderID))
		return Folder{}, newServiceError(opFolderByName, reasonFolderLookupFailed, err)
	}
	return folder, nil
}

// FolderByName returns the first folder with the given name, resolved
// through the name index rather than a scan.
func (s *Service) FolderByName(ctx context.Context, name string) (Folder, error) {
	if s.db == nil {
		return Folder{}, newServiceError(opFolderByName, reasonStoreUnavailable, ErrStoreUnavailable)
	}
	var folder Folder
	err := s.db.WithContext(ctx).Where(queryByName, name).Order("id ASC").Take(&folder).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Folder{}, newServiceError(opFolderByName, reasonFolderNotFound, ErrNotFound)
	}
	if err != nil {
		s.logError(opFolderByName, reasonFolderLookupFailed, err, zap.String("name", name))
		return Folder{}, newServiceError(opFolderByName, reasonFolderLookupFailed, err)
	}
	return folder, nil
}

// FolderCanvases dereferences a folder's cache against the canvas
// collection. Entries whose canvas record is missing are skipped.
func (s *Service) FolderCanvases(ctx context.Context, folderID int64) ([]Canvas, error) {
	if s.db == nil {
		return nil, newServiceError(opFolderCanvases, reasonStoreUnavailable, ErrStoreUnavailable)
	}

	folder, err := loadFolder(s.db.WithContext(ctx), folderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newServiceError(opFolderCanvases, reasonFolderNotFound, ErrNotFound)
	}
	if err != nil {
		s.logError(opFolderCanvases, reasonFolderLookupFailed, err, zap.Int64(fieldFolderID, folderID))
		return nil, newServiceError(opFolderCanvases, reasonFolderLookupFailed, err)
	}

	refs := folder.Refs()
	canvases := make([]Canvas, 0, len(refs))
	for _, ref := range refs {
		var canvas Canvas
		err := s.db.WithContext(ctx).Where(queryByID, ref.CanvasID).Take(&canvas).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn("folder cache references missing canvas",
				zap.Int64(fieldFolderID, folderID),
				zap.String(fieldCanvasID, ref.CanvasID))
			continue
		}
		if err != nil {
			s.logError(opFolderCanvases, reasonCanvasLookupFailed, err,
				zap.Int64(fieldFolderID, folderID),
				zap.String(fieldCanvasID, ref.CanvasID))
			return nil, newServiceError(opFolderCanvases, reasonCanvasLookupFailed, err)
		}
		canvases = append(canvases, canvas)
	}
	return canvases, nil
}

func (s *Service) timestamp() string {
	return s.clock().UTC().Format(time.RFC3339)
}

func validateName(rawInput string) (string, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if len(trimmed) > maxNameLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return trimmed, nil
}

func loadFolder(tx *gorm.DB, folderID int64) (Folder, error) {
	var folder Folder
	err := tx.Where(queryByID, folderID).Take(&folder).Error
	return folder, err
}

func loadCanvas(tx *gorm.DB, canvasID string) (Canvas, error) {
	var canvas Canvas
	err := tx.Where(queryByID, canvasID).Take(&canvas).Error
	return canvas, err
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("catalog service error", attrs...)
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}
