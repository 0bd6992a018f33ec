package catalog

import (
	"encoding/json"

	"gorm.io/datatypes"

	"github.com/excalidraw-organizer/backend/internal/workspace"
)

const (
	// DefaultFolderID is the reserved identifier of the folder created on
	// first initialization. It can never be deleted.
	DefaultFolderID = workspace.DefaultFolderID
	// DefaultFolderName is the reserved name the Default folder is created
	// with. The folder may be renamed later; its identity is the id.
	DefaultFolderName = "Default"
)

const maxNameLength = 190

// CanvasRef is a folder's cached view of one canvas: identity plus display
// name, kept so folder listings never load full canvas bodies. The canvas
// record remains the source of truth for the name.
type CanvasRef struct {
	CanvasID   string `json:"canvasId"`
	CanvasName string `json:"canvasName"`
}

// Folder is a durable named group of canvases.
type Folder struct {
	ID        int64                           `gorm:"column:id;primaryKey;autoIncrement"`
	Name      string                          `gorm:"column:name;size:190;not null;index:idx_folders_name"`
	Canvases  datatypes.JSONType[[]CanvasRef] `gorm:"column:canvases;not null"`
	CreatedAt string                          `gorm:"column:created_at;size:64;not null"`
	UpdatedAt string                          `gorm:"column:updated_at;size:64;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Folder) TableName() string {
	return "folders"
}

// Refs returns the folder's cached canvas entries.
func (f Folder) Refs() []CanvasRef {
	return f.Canvases.Data()
}

// HasCanvas reports whether the folder's cache lists the canvas id.
func (f Folder) HasCanvas(canvasID string) bool {
	for _, ref := range f.Refs() {
		if ref.CanvasID == canvasID {
			return true
		}
	}
	return false
}

// Canvas is a durable drawing document: an opaque element sequence plus the
// partial editor state snapshot it was captured with.
type Canvas struct {
	ID            string         `gorm:"column:id;primaryKey;size:190;not null"`
	Name          string         `gorm:"column:name;size:190;not null;index:idx_canvases_name"`
	Elements      datatypes.JSON `gorm:"column:elements;not null"`
	DocumentState datatypes.JSON `gorm:"column:document_state;not null"`
	CreatedAt     string         `gorm:"column:created_at;size:64;not null"`
	UpdatedAt     string         `gorm:"column:updated_at;size:64;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Canvas) TableName() string {
	return "canvases"
}

// documentStateWithName returns the state blob with its name field set,
// preserving every other field. Unreadable input degrades to a state that
// carries only the name.
func documentStateWithName(state datatypes.JSON, name string) datatypes.JSON {
	parsed := map[string]any{}
	if len(state) > 0 {
		if err := json.Unmarshal(state, &parsed); err != nil {
			parsed = map[string]any{}
		}
	}
	parsed["name"] = name
	encoded, err := json.Marshal(map[string]any(parsed))
	if err != nil {
		encoded, _ = json.Marshal(map[string]string{"name": name})
	}
	return datatypes.JSON(encoded)
}

// documentStateFromEditor captures an editor state snapshot as a
// documentState blob, forcing the name field so the record invariant holds.
func documentStateFromEditor(state workspace.EditorState, name string) datatypes.JSON {
	if state == nil {
		state = workspace.EditorState{}
	}
	if name != "" {
		state.SetName(name)
	}
	encoded, err := json.Marshal(state)
	if err != nil {
		return documentStateWithName(nil, name)
	}
	return datatypes.JSON(encoded)
}
