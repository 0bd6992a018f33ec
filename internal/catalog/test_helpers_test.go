package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/excalidraw-organizer/backend/internal/workspace"
)

type staticIDGenerator struct {
	ids   []string
	index int
}

func (g *staticIDGenerator) NewID() (string, error) {
	if g.index >= len(g.ids) {
		return "", errors.New("exhausted ids")
	}
	id := g.ids[g.index]
	g.index++
	return id, nil
}

// testClock advances only when a test asks it to, so timestamp assertions
// are exact.
type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1700000000, 0).UTC()}
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

type testEnv struct {
	service  *Service
	db       *gorm.DB
	accessor *workspace.Accessor
	storage  *workspace.MemoryStorage
	clock    *testClock
}

func newTestEnv(t *testing.T, ids []string) testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:organizer_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Folder{}, &Canvas{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	storage := workspace.NewMemoryStorage()
	generator := &staticIDGenerator{ids: ids}
	accessor, err := workspace.NewAccessor(workspace.AccessorConfig{
		Storage:    storage,
		IDProvider: generator,
	})
	if err != nil {
		t.Fatalf("failed to build accessor: %v", err)
	}

	clock := newTestClock()
	service, err := NewService(ServiceConfig{
		Database:   db,
		Workspace:  accessor,
		Clock:      clock.Now,
		IDProvider: generator,
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}

	return testEnv{
		service:  service,
		db:       db,
		accessor: accessor,
		storage:  storage,
		clock:    clock,
	}
}

func mustCreateFolder(t *testing.T, env testEnv, name string) Folder {
	t.Helper()
	folder, err := env.service.CreateFolder(context.Background(), name)
	if err != nil {
		t.Fatalf("unexpected create folder error: %v", err)
	}
	return folder
}

func mustCreateCanvas(t *testing.T, env testEnv, name string) Canvas {
	t.Helper()
	canvas, err := env.service.CreateCanvas(context.Background(), name)
	if err != nil {
		t.Fatalf("unexpected create canvas error: %v", err)
	}
	return canvas
}

func mustAttachCanvas(t *testing.T, env testEnv, folderID int64, canvas Canvas) {
	t.Helper()
	if err := env.service.AttachCanvas(context.Background(), folderID, canvas.ID, canvas.Name); err != nil {
		t.Fatalf("unexpected attach error: %v", err)
	}
}

func mustFolderByID(t *testing.T, env testEnv, folderID int64) Folder {
	t.Helper()
	folder, err := env.service.FolderByID(context.Background(), folderID)
	if err != nil {
		t.Fatalf("unexpected folder lookup error: %v", err)
	}
	return folder
}

func mustBootstrap(t *testing.T, env testEnv) {
	t.Helper()
	if err := env.service.Bootstrap(context.Background()); err != nil {
		t.Fatalf("unexpected bootstrap error: %v", err)
	}
}

func countFoldersListing(t *testing.T, env testEnv, canvasID string) int {
	t.Helper()
	folders, err := env.service.Folders(context.Background())
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	count := 0
	for _, folder := range folders {
		if folder.HasCanvas(canvasID) {
			count++
		}
	}
	return count
}
