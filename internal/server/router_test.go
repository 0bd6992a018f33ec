package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/excalidraw-organizer/backend/internal/catalog"
	"github.com/excalidraw-organizer/backend/internal/checkpoint"
	"github.com/excalidraw-organizer/backend/internal/session"
	"github.com/excalidraw-organizer/backend/internal/workspace"
)

type sequenceIDGenerator struct {
	next int
}

func (g *sequenceIDGenerator) NewID() (string, error) {
	g.next++
	return fmt.Sprintf("canvas-%d", g.next), nil
}

type noopReloader struct{}

func (noopReloader) Reload() error { return nil }

type routerEnv struct {
	handler  http.Handler
	catalog  *catalog.Service
	accessor *workspace.Accessor
	storage  *workspace.MemoryStorage
}

func newRouterEnv(t *testing.T) routerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:server_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&catalog.Folder{}, &catalog.Canvas{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	storage := workspace.NewMemoryStorage()
	generator := &sequenceIDGenerator{}
	accessor, err := workspace.NewAccessor(workspace.AccessorConfig{
		Storage:    storage,
		IDProvider: generator,
	})
	if err != nil {
		t.Fatalf("failed to build accessor: %v", err)
	}

	service, err := catalog.NewService(catalog.ServiceConfig{
		Database:   db,
		Workspace:  accessor,
		IDProvider: generator,
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	if err := service.Bootstrap(context.Background()); err != nil {
		t.Fatalf("failed to bootstrap: %v", err)
	}

	saver, err := checkpoint.NewSaver(checkpoint.SaverConfig{Catalog: service, Workspace: accessor})
	if err != nil {
		t.Fatalf("failed to build saver: %v", err)
	}
	switcher, err := session.NewSwitcher(session.SwitcherConfig{
		Catalog:   service,
		Workspace: accessor,
		Saver:     saver,
		Reloader:  noopReloader{},
	})
	if err != nil {
		t.Fatalf("failed to build switcher: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		CatalogService: service,
		Switcher:       switcher,
		Workspace:      accessor,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return routerEnv{handler: handler, catalog: service, accessor: accessor, storage: storage}
}

func (env routerEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var request *http.Request
	if body == "" {
		request = httptest.NewRequest(method, path, http.NoBody)
	} else {
		request = httptest.NewRequest(method, path, strings.NewReader(body))
		request.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	env.handler.ServeHTTP(recorder, request)
	return recorder
}

func TestListFoldersIncludesDefault(t *testing.T) {
	env := newRouterEnv(t)

	recorder := env.do(t, http.MethodGet, "/folders", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected ok status, got %d", recorder.Code)
	}
	var payload []folderPayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(payload) != 1 || payload[0].Name != "Default" {
		t.Fatalf("unexpected folder listing: %+v", payload)
	}
	if len(payload[0].Canvases) != 1 {
		t.Fatalf("default folder must list the seeded canvas: %+v", payload[0])
	}
}

func TestCreateFolderReturnsCreated(t *testing.T) {
	env := newRouterEnv(t)

	recorder := env.do(t, http.MethodPost, "/folders", `{"name":"Work"}`)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected created status, got %d", recorder.Code)
	}
	var payload folderPayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.Name != "Work" || payload.ID == 0 {
		t.Fatalf("unexpected folder payload: %+v", payload)
	}
	if payload.Canvases == nil || len(payload.Canvases) != 0 {
		t.Fatalf("new folder must serialize an empty canvases array: %s", recorder.Body.String())
	}
}

func TestCreateFolderRejectsBlankName(t *testing.T) {
	env := newRouterEnv(t)

	recorder := env.do(t, http.MethodPost, "/folders", `{"name":"   "}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request status, got %d", recorder.Code)
	}
	if recorder.Body.String() != `{"error":"invalid_name"}` {
		t.Fatalf("unexpected response body: %s", recorder.Body.String())
	}
}

func TestDeleteDefaultFolderConflicts(t *testing.T) {
	env := newRouterEnv(t)

	recorder := env.do(t, http.MethodDelete, "/folders/1", "")
	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected conflict status, got %d", recorder.Code)
	}
	if recorder.Body.String() != `{"error":"protected_resource"}` {
		t.Fatalf("unexpected response body: %s", recorder.Body.String())
	}
}

func TestDeleteMissingFolderNotFound(t *testing.T) {
	env := newRouterEnv(t)

	recorder := env.do(t, http.MethodDelete, "/folders/999", "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected not found status, got %d", recorder.Code)
	}
}

func TestFolderRoutesRejectMalformedID(t *testing.T) {
	env := newRouterEnv(t)

	recorder := env.do(t, http.MethodDelete, "/folders/abc", "")
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request status, got %d", recorder.Code)
	}
}

func TestDeleteActiveCanvasConflicts(t *testing.T) {
	env := newRouterEnv(t)
	activeID := env.accessor.ActiveCanvasID()

	recorder := env.do(t, http.MethodDelete, "/canvases/"+activeID, "")
	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected conflict status, got %d", recorder.Code)
	}
	if recorder.Body.String() != `{"error":"active_resource_in_use"}` {
		t.Fatalf("unexpected response body: %s", recorder.Body.String())
	}
}

func TestCreateCanvasSwitchesActiveDocument(t *testing.T) {
	env := newRouterEnv(t)

	recorder := env.do(t, http.MethodPost, "/canvases", `{"name":"Diagram"}`)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected created status, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var payload canvasPayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if env.accessor.ActiveCanvasID() != payload.ID {
		t.Fatal("created canvas must become the active document")
	}

	folder, err := env.catalog.FolderByID(context.Background(), catalog.DefaultFolderID)
	if err != nil {
		t.Fatalf("unexpected folder lookup error: %v", err)
	}
	if !folder.HasCanvas(payload.ID) {
		t.Fatal("created canvas must land in the default folder when none is given")
	}
}

func TestActivateCanvasRoundTrip(t *testing.T) {
	env := newRouterEnv(t)

	created := env.do(t, http.MethodPost, "/canvases", `{"name":"Diagram"}`)
	var payload canvasPayload
	if err := json.Unmarshal(created.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	firstID := "canvas-1"

	recorder := env.do(t, http.MethodPost, "/canvases/"+firstID+"/activate", "")
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected no content status, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if env.accessor.ActiveCanvasID() != firstID {
		t.Fatal("activation must install the target pointer")
	}
}

func TestActivateMissingCanvasNotFound(t *testing.T) {
	env := newRouterEnv(t)

	recorder := env.do(t, http.MethodPost, "/canvases/missing/activate", "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected not found status, got %d", recorder.Code)
	}
}

func TestMoveCanvasOverHTTP(t *testing.T) {
	env := newRouterEnv(t)

	created := env.do(t, http.MethodPost, "/folders", `{"name":"Work"}`)
	var work folderPayload
	if err := json.Unmarshal(created.Body.Bytes(), &work); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	body := fmt.Sprintf(`{"from_folder_id":%d,"to_folder_id":%d}`, catalog.DefaultFolderID, work.ID)
	recorder := env.do(t, http.MethodPost, "/canvases/canvas-1/move", body)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected no content status, got %d: %s", recorder.Code, recorder.Body.String())
	}

	folder, err := env.catalog.FolderByID(context.Background(), work.ID)
	if err != nil {
		t.Fatalf("unexpected folder lookup error: %v", err)
	}
	if !folder.HasCanvas("canvas-1") {
		t.Fatalf("canvas not moved: %+v", folder.Refs())
	}
}

func TestMoveCanvasRequiresTargetFolder(t *testing.T) {
	env := newRouterEnv(t)

	recorder := env.do(t, http.MethodPost, "/canvases/canvas-1/move", `{"from_folder_id":1}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request status, got %d", recorder.Code)
	}
}

func TestRenameCanvasDefaultsToSelectedFolder(t *testing.T) {
	env := newRouterEnv(t)
	env.accessor.SetSelectedFolderID(catalog.DefaultFolderID)

	recorder := env.do(t, http.MethodPatch, "/canvases/canvas-1", `{"name":"Renamed"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected ok status, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var payload canvasPayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.Name != "Renamed" {
		t.Fatalf("unexpected canvas payload: %+v", payload)
	}
}

func TestPanelVisibilityRoundTrip(t *testing.T) {
	env := newRouterEnv(t)

	recorder := env.do(t, http.MethodGet, "/panel", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected ok status, got %d", recorder.Code)
	}
	if recorder.Body.String() != `{"visible":false}` {
		t.Fatalf("unexpected response body: %s", recorder.Body.String())
	}

	recorder = env.do(t, http.MethodPut, "/panel", `{"visible":true}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected ok status, got %d", recorder.Code)
	}
	if recorder.Body.String() != `{"visible":true}` {
		t.Fatalf("unexpected response body: %s", recorder.Body.String())
	}
	if !env.accessor.PanelVisible() {
		t.Fatal("panel visibility not stored")
	}
}
