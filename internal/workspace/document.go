package workspace

import (
	"encoding/json"
	"errors"
)

// DefaultFolderID is the reserved identifier of the folder that always
// exists. The selected-folder pointer falls back to it when unset.
const DefaultFolderID int64 = 1

// DefaultCanvasName is used when the editor state carries no name.
const DefaultCanvasName = "canvas 1"

// ErrMalformedState indicates ephemeral storage content that failed to
// parse. It is recovered locally with defaults and never surfaced to
// callers of the accessor.
var ErrMalformedState = errors.New("workspace: malformed ephemeral state")

// EditorState is the partial editor configuration snapshot kept alongside a
// scene. It is opaque apart from the display name, which must stay in sync
// with the owning canvas record.
type EditorState map[string]any

// Name returns the display name stored in the state, or "" when absent.
func (s EditorState) Name() string {
	value, ok := s["name"].(string)
	if !ok {
		return ""
	}
	return value
}

// SetName stores the display name in the state.
func (s EditorState) SetName(name string) {
	s["name"] = name
}

// Document is the active canvas as held in ephemeral storage: an opaque
// element sequence plus the editor state snapshot. Identity is tracked
// out-of-band through the active-canvas pointer, never encoded into the
// display name.
type Document struct {
	ID       string
	Name     string
	Elements json.RawMessage
	State    EditorState
}

type sceneElement struct {
	Version int64 `json:"version"`
}

// SceneVersion computes the deterministic change fingerprint of an element
// sequence: the sum of every element's version counter. Malformed input
// yields 0 so an unreadable scene is indistinguishable from an empty one.
func SceneVersion(elements json.RawMessage) int64 {
	var parsed []sceneElement
	if err := json.Unmarshal(elements, &parsed); err != nil {
		return 0
	}
	var total int64
	for _, element := range parsed {
		total += element.Version
	}
	return total
}

func emptyElements() json.RawMessage {
	return json.RawMessage("[]")
}
