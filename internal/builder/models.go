// internal/builder/models.go
package builder

import (
	"time"

	"pagepack/internal/bundler"
	"pagepack/internal/views"
)

// Report summarizes one build.
type Report struct {
	ID       string
	Mode     string
	Started  time.Time
	Duration time.Duration
	Entries  []bundler.EntryAssets
	Pages    []views.PageConfig
	Files    []string
	Warnings []bundler.Message
}

// Manifest is the JSON written next to the build output.
type Manifest struct {
	BuildID string                         `json:"buildId"`
	Mode    string                         `json:"mode"`
	Built   time.Time                      `json:"built"`
	Entries map[string]bundler.EntryAssets `json:"entries"`
	Pages   []views.PageConfig             `json:"pages"`
	Files   []string                       `json:"files"`
}
