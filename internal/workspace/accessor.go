package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"
)

const (
	keyScene       = "excalidraw"
	keyEditorState = "excalidraw-state"

	keyPrefix               = "excalidraw-organizer"
	keyActiveCanvasID       = keyPrefix + "-active-canvas-id"
	keySelectedFolderID     = keyPrefix + "-selected-folder-id"
	keyLastSavedVersion     = keyPrefix + "-last-saved-scene-version"
	keyPanelVisible         = keyPrefix + "-show-panel"
	keySuppressNextSave     = keyPrefix + "-do-not-save-canvas-now"
	keyReloadRequested      = keyPrefix + "-reload-requested"
	suppressNextSaveEnabled = "true"
)

var errMissingStorage = errors.New("workspace: storage is required")

// IDProvider issues identifiers for documents that have none yet.
type IDProvider interface {
	NewID() (string, error)
}

// AccessorConfig describes the dependencies of an Accessor.
type AccessorConfig struct {
	Storage    Storage
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Accessor is the single seam through which the rest of the system reads and
// writes the host editor's ephemeral storage: the current scene, the editor
// state, and the active/selected pointers.
type Accessor struct {
	storage    Storage
	idProvider IDProvider
	logger     *zap.Logger
}

// NewAccessor validates the configuration and returns an Accessor.
func NewAccessor(cfg AccessorConfig) (*Accessor, error) {
	if cfg.Storage == nil {
		return nil, errMissingStorage
	}
	if cfg.IDProvider == nil {
		return nil, errors.New("workspace: id provider is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Accessor{
		storage:    cfg.Storage,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// ReadActiveDocument reads the current scene and editor state. It returns
// nil when no active-canvas pointer is set and falls back to defaults when
// stored values are missing or malformed; it never fails.
func (a *Accessor) ReadActiveDocument() *Document {
	canvasID := a.ActiveCanvasID()
	if canvasID == "" {
		return nil
	}
	state := a.readEditorState()
	return &Document{
		ID:       canvasID,
		Name:     state.Name(),
		Elements: a.readElements(),
		State:    state,
	}
}

// AssignIdentityIfMissing returns the current document, minting a fresh
// identifier when the active-canvas pointer is unset and substituting the
// default name when the editor state carries none. The pointer itself is
// not written; installing identity is the caller's decision.
func (a *Accessor) AssignIdentityIfMissing() (Document, error) {
	canvasID := a.ActiveCanvasID()
	if canvasID == "" {
		generated, err := a.idProvider.NewID()
		if err != nil {
			return Document{}, fmt.Errorf("workspace: generate canvas id: %w", err)
		}
		canvasID = generated
	}

	state := a.readEditorState()
	name := state.Name()
	if name == "" {
		name = DefaultCanvasName
		state.SetName(name)
	}

	return Document{
		ID:       canvasID,
		Name:     name,
		Elements: a.readElements(),
		State:    state,
	}, nil
}

// WriteActiveDocument overwrites the ephemeral scene and editor state. The
// host editor observes the new content after its next reload.
func (a *Accessor) WriteActiveDocument(doc Document) error {
	state := doc.State
	if state == nil {
		state = EditorState{}
	}
	if doc.Name != "" {
		state.SetName(doc.Name)
	}
	encodedState, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("workspace: encode editor state: %w", err)
	}

	elements := doc.Elements
	if len(elements) == 0 || !json.Valid(elements) {
		elements = emptyElements()
	}

	a.storage.Set(keyScene, string(elements))
	a.storage.Set(keyEditorState, string(encodedState))
	return nil
}

// SetActiveDocumentName updates the name inside the stored editor state in
// place, so an open editor reflects a rename without a reload.
func (a *Accessor) SetActiveDocumentName(name string) error {
	state := a.readEditorState()
	state.SetName(name)
	encoded, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("workspace: encode editor state: %w", err)
	}
	a.storage.Set(keyEditorState, string(encoded))
	return nil
}

// ActiveCanvasID returns the active-canvas pointer, or "" when unset.
func (a *Accessor) ActiveCanvasID() string {
	value, _ := a.storage.Get(keyActiveCanvasID)
	return value
}

// SetActiveCanvasID installs the active-canvas pointer.
func (a *Accessor) SetActiveCanvasID(canvasID string) {
	a.storage.Set(keyActiveCanvasID, canvasID)
}

// SelectedFolderID returns the selected-folder pointer, falling back to the
// Default folder when unset or unreadable.
func (a *Accessor) SelectedFolderID() int64 {
	value, ok := a.storage.Get(keySelectedFolderID)
	if !ok {
		return DefaultFolderID
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil || parsed <= 0 {
		a.logger.Debug("selected folder pointer unreadable, using default",
			zap.String("value", value))
		return DefaultFolderID
	}
	return parsed
}

// SetSelectedFolderID installs the selected-folder pointer.
func (a *Accessor) SetSelectedFolderID(folderID int64) {
	a.storage.Set(keySelectedFolderID, strconv.FormatInt(folderID, 10))
}

// LastSavedSceneVersion returns the fingerprint recorded at the last
// successful checkpoint, or 0 when none was recorded.
func (a *Accessor) LastSavedSceneVersion() int64 {
	value, ok := a.storage.Get(keyLastSavedVersion)
	if !ok {
		return 0
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}

// SetLastSavedSceneVersion records the fingerprint of the last checkpoint.
func (a *Accessor) SetLastSavedSceneVersion(version int64) {
	a.storage.Set(keyLastSavedVersion, strconv.FormatInt(version, 10))
}

// SuppressNextCheckpoint sets the one-shot flag that makes the scheduler
// skip its next tick. Set during a document switch so the timer cannot
// checkpoint the freshly installed scene over the record it was loaded from.
func (a *Accessor) SuppressNextCheckpoint() {
	a.storage.Set(keySuppressNextSave, suppressNextSaveEnabled)
}

// TakeSuppressCheckpoint consumes the suppression flag, reporting whether it
// was set. The flag is cleared so exactly one tick is skipped.
func (a *Accessor) TakeSuppressCheckpoint() bool {
	value, ok := a.storage.Get(keySuppressNextSave)
	if !ok {
		return false
	}
	a.storage.Delete(keySuppressNextSave)
	return value == suppressNextSaveEnabled
}

// RequestHostReload sets the flag the host integration watches to restart
// the editor page, making it re-read ephemeral storage from scratch.
func (a *Accessor) RequestHostReload() {
	a.storage.Set(keyReloadRequested, "true")
}

// TakeHostReloadRequest consumes a pending reload request, reporting whether
// one was set.
func (a *Accessor) TakeHostReloadRequest() bool {
	value, ok := a.storage.Get(keyReloadRequested)
	if !ok {
		return false
	}
	a.storage.Delete(keyReloadRequested)
	return value == "true"
}

// PanelVisible reports whether the organizer panel is shown.
func (a *Accessor) PanelVisible() bool {
	value, ok := a.storage.Get(keyPanelVisible)
	if !ok {
		return false
	}
	var visible bool
	if err := json.Unmarshal([]byte(value), &visible); err != nil {
		return false
	}
	return visible
}

// SetPanelVisible stores the panel visibility flag.
func (a *Accessor) SetPanelVisible(visible bool) {
	a.storage.Set(keyPanelVisible, strconv.FormatBool(visible))
}

func (a *Accessor) readEditorState() EditorState {
	raw, ok := a.storage.Get(keyEditorState)
	if !ok {
		return EditorState{}
	}
	var state EditorState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		a.logger.Debug("editor state unreadable, using empty state",
			zap.Error(fmt.Errorf("%w: %v", ErrMalformedState, err)))
		return EditorState{}
	}
	if state == nil {
		return EditorState{}
	}
	return state
}

func (a *Accessor) readElements() json.RawMessage {
	raw, ok := a.storage.Get(keyScene)
	if !ok {
		return emptyElements()
	}
	elements := json.RawMessage(raw)
	if !json.Valid(elements) {
		a.logger.Debug("scene unreadable, using empty scene",
			zap.Error(ErrMalformedState))
		return emptyElements()
	}
	return elements
}
