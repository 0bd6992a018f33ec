package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/excalidraw-organizer/backend/internal/catalog"
	"github.com/excalidraw-organizer/backend/internal/session"
	"github.com/excalidraw-organizer/backend/internal/workspace"
)

var (
	errMissingCatalogService = errors.New("catalog service dependency required")
	errMissingSwitcher       = errors.New("switcher dependency required")
	errMissingWorkspace      = errors.New("workspace dependency required")
)

// Dependencies lists what the HTTP surface needs to serve the panel UI.
type Dependencies struct {
	CatalogService *catalog.Service
	Switcher       *session.Switcher
	Workspace      *workspace.Accessor
	Logger         *zap.Logger
}

// NewHTTPHandler builds the router exposing the directory service and the
// switch protocol to the side panel.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.CatalogService == nil {
		return nil, errMissingCatalogService
	}
	if deps.Switcher == nil {
		return nil, errMissingSwitcher
	}
	if deps.Workspace == nil {
		return nil, errMissingWorkspace
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		catalogService: deps.CatalogService,
		switcher:       deps.Switcher,
		ws:             deps.Workspace,
		logger:         logger,
	}

	router.GET("/folders", handler.handleListFolders)
	router.POST("/folders", handler.handleCreateFolder)
	router.PATCH("/folders/:id", handler.handleRenameFolder)
	router.DELETE("/folders/:id", handler.handleDeleteFolder)
	router.GET("/folders/:id/canvases", handler.handleFolderCanvases)

	router.POST("/canvases", handler.handleCreateCanvas)
	router.PATCH("/canvases/:id", handler.handleRenameCanvas)
	router.DELETE("/canvases/:id", handler.handleDeleteCanvas)
	router.POST("/canvases/:id/activate", handler.handleActivateCanvas)
	router.POST("/canvases/:id/move", handler.handleMoveCanvas)

	router.GET("/panel", handler.handlePanelVisibility)
	router.PUT("/panel", handler.handleSetPanelVisibility)

	return router, nil
}

type httpHandler struct {
	catalogService *catalog.Service
	switcher       *session.Switcher
	ws             *workspace.Accessor
	logger         *zap.Logger
}

type folderPayload struct {
	ID        int64               `json:"id"`
	Name      string              `json:"name"`
	Canvases  []catalog.CanvasRef `json:"canvases"`
	CreatedAt string              `json:"created_at"`
	UpdatedAt string              `json:"updated_at"`
}

type canvasPayload struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Elements      json.RawMessage `json:"elements"`
	DocumentState json.RawMessage `json:"document_state"`
	CreatedAt     string          `json:"created_at"`
	UpdatedAt     string          `json:"updated_at"`
}

func folderToPayload(folder catalog.Folder) folderPayload {
	refs := folder.Refs()
	if refs == nil {
		refs = []catalog.CanvasRef{}
	}
	return folderPayload{
		ID:        folder.ID,
		Name:      folder.Name,
		Canvases:  refs,
		CreatedAt: folder.CreatedAt,
		UpdatedAt: folder.UpdatedAt,
	}
}

func canvasToPayload(canvas catalog.Canvas) canvasPayload {
	return canvasPayload{
		ID:            canvas.ID,
		Name:          canvas.Name,
		Elements:      json.RawMessage(canvas.Elements),
		DocumentState: json.RawMessage(canvas.DocumentState),
		CreatedAt:     canvas.CreatedAt,
		UpdatedAt:     canvas.UpdatedAt,
	}
}

func (h *httpHandler) handleListFolders(c *gin.Context) {
	folders, err := h.catalogService.Folders(c.Request.Context())
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	payload := make([]folderPayload, 0, len(folders))
	for _, folder := range folders {
		payload = append(payload, folderToPayload(folder))
	}
	c.JSON(http.StatusOK, payload)
}

type namePayload struct {
	Name string `json:"name"`
}

func (h *httpHandler) handleCreateFolder(c *gin.Context) {
	var request namePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	folder, err := h.catalogService.CreateFolder(c.Request.Context(), request.Name)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, folderToPayload(folder))
}

func (h *httpHandler) handleRenameFolder(c *gin.Context) {
	folderID, ok := parseFolderID(c)
	if !ok {
		return
	}
	var request namePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	folder, err := h.catalogService.RenameFolder(c.Request.Context(), folderID, request.Name)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, folderToPayload(folder))
}

func (h *httpHandler) handleDeleteFolder(c *gin.Context) {
	folderID, ok := parseFolderID(c)
	if !ok {
		return
	}
	if err := h.catalogService.DeleteFolder(c.Request.Context(), folderID); err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleFolderCanvases(c *gin.Context) {
	folderID, ok := parseFolderID(c)
	if !ok {
		return
	}
	canvases, err := h.catalogService.FolderCanvases(c.Request.Context(), folderID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	payload := make([]canvasPayload, 0, len(canvases))
	for _, canvas := range canvases {
		payload = append(payload, canvasToPayload(canvas))
	}
	c.JSON(http.StatusOK, payload)
}

type createCanvasPayload struct {
	Name     string `json:"name"`
	FolderID int64  `json:"folder_id"`
}

func (h *httpHandler) handleCreateCanvas(c *gin.Context) {
	var request createCanvasPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	folderID := request.FolderID
	if folderID == 0 {
		folderID = catalog.DefaultFolderID
	}
	canvas, err := h.switcher.CreateAndSwitch(c.Request.Context(), request.Name, folderID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, canvasToPayload(canvas))
}

type renameCanvasPayload struct {
	Name     string `json:"name"`
	FolderID int64  `json:"folder_id"`
}

func (h *httpHandler) handleRenameCanvas(c *gin.Context) {
	canvasID := c.Param("id")
	var request renameCanvasPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	folderID := request.FolderID
	if folderID == 0 {
		folderID = h.ws.SelectedFolderID()
	}
	canvas, err := h.catalogService.RenameCanvas(c.Request.Context(), folderID, canvasID, request.Name)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, canvasToPayload(canvas))
}

func (h *httpHandler) handleDeleteCanvas(c *gin.Context) {
	if err := h.catalogService.DeleteCanvas(c.Request.Context(), c.Param("id")); err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleActivateCanvas(c *gin.Context) {
	if err := h.switcher.SwitchTo(c.Request.Context(), c.Param("id")); err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type moveCanvasPayload struct {
	FromFolderID int64 `json:"from_folder_id"`
	ToFolderID   int64 `json:"to_folder_id"`
}

func (h *httpHandler) handleMoveCanvas(c *gin.Context) {
	var request moveCanvasPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.ToFolderID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	fromFolderID := request.FromFolderID
	if fromFolderID == 0 {
		fromFolderID = h.ws.SelectedFolderID()
	}
	err := h.catalogService.MoveCanvas(c.Request.Context(), fromFolderID, request.ToFolderID, c.Param("id"))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type panelPayload struct {
	Visible bool `json:"visible"`
}

func (h *httpHandler) handlePanelVisibility(c *gin.Context) {
	c.JSON(http.StatusOK, panelPayload{Visible: h.ws.PanelVisible()})
}

func (h *httpHandler) handleSetPanelVisibility(c *gin.Context) {
	var request panelPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	h.ws.SetPanelVisible(request.Visible)
	c.JSON(http.StatusOK, panelPayload{Visible: h.ws.PanelVisible()})
}

func parseFolderID(c *gin.Context) (int64, bool) {
	folderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || folderID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return 0, false
	}
	return folderID, true
}

func (h *httpHandler) respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, catalog.ErrProtectedResource):
		c.JSON(http.StatusConflict, gin.H{"error": "protected_resource"})
	case errors.Is(err, catalog.ErrActiveResourceInUse):
		c.JSON(http.StatusConflict, gin.H{"error": "active_resource_in_use"})
	case errors.Is(err, catalog.ErrInvalidName):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_name"})
	case errors.Is(err, catalog.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store_unavailable"})
	default:
		h.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}
