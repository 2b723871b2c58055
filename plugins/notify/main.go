// Package main provides a notification plugin for macOS.
// It posts a Notification Center banner when a heart gesture is confirmed.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Request represents the input from the plugin executor.
type Request struct {
	Event  string          `json:"event"`
	Config json.RawMessage `json:"config"`
	Params json.RawMessage `json:"params"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Config is the plugin's manifest configuration.
type Config struct {
	Title string `json:"title"`
	Sound string `json:"sound"`
}

// HeartParams is the payload of a heart_confirmed event.
type HeartParams struct {
	Count uint64 `json:"count"`
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	cfg := Config{Title: "Heartreel"}
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			writeErrorResponse(fmt.Sprintf("invalid config: %v", err))
			return
		}
	}

	var message string
	switch req.Event {
	case "heart_confirmed":
		var p HeartParams
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &p); err != nil {
				writeErrorResponse(fmt.Sprintf("failed to parse params: %v", err))
				return
			}
		}
		message = "Heart confirmed ♥"
		if p.Count > 1 {
			message = fmt.Sprintf("Heart confirmed ♥ (%d so far)", p.Count)
		}
	case "camera_unavailable":
		message = "Camera unavailable, gestures are paused"
	default:
		writeErrorResponse(fmt.Sprintf("unknown event: %s", req.Event))
		return
	}

	if err := notify(cfg, message); err != nil {
		writeErrorResponse(fmt.Sprintf("notification failed: %v", err))
		return
	}

	data, _ := json.Marshal(map[string]string{"message": message})
	json.NewEncoder(os.Stdout).Encode(Response{Success: true, Data: data})
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(Response{Success: false, Error: errMsg})
}

// buildScript returns the AppleScript that displays message.
func buildScript(cfg Config, message string) string {
	var b strings.Builder
	b.WriteString("display notification ")
	b.WriteString(strconv.Quote(message))
	b.WriteString(" with title ")
	b.WriteString(strconv.Quote(cfg.Title))
	if cfg.Sound != "" {
		b.WriteString(" sound name ")
		b.WriteString(strconv.Quote(cfg.Sound))
	}
	return b.String()
}

// notify runs osascript to display the notification.
func notify(cfg Config, message string) error {
	cmd := exec.Command("osascript", "-e", buildScript(cfg, message))
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}
