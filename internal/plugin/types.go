// Package plugin discovers external hook executables and runs them when
// carousel events such as a confirmed heart gesture occur.
package plugin

import "encoding/json"

// Event names a plugin can subscribe to.
const (
	EventHeartConfirmed    = "heart_confirmed"
	EventCameraUnavailable = "camera_unavailable"
	EventSceneLoaded       = "scene_loaded"
)

// Manifest describes a plugin's metadata and the events it handles.
type Manifest struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Description  string          `json:"description"`
	Executable   string          `json:"executable"`
	Events       []string        `json:"events"`
	Config       json.RawMessage `json:"config,omitempty"`
	ConfigSchema json.RawMessage `json:"configSchema,omitempty"`
}

// Handles reports whether the plugin subscribes to event.
func (m Manifest) Handles(event string) bool {
	for _, e := range m.Events {
		if e == event {
			return true
		}
	}
	return false
}

// Request is sent to a plugin on stdin.
type Request struct {
	Event  string          `json:"event"`
	Config json.RawMessage `json:"config"`
	Params json.RawMessage `json:"params"`
}

// Response is read from a plugin's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}
