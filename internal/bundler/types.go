package bundler

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// metafile is the subset of esbuild's metafile the bundler reads back.
type metafile struct {
	Outputs map[string]outputInfo `json:"outputs"`
}

type outputInfo struct {
	EntryPoint string       `json:"entryPoint"`
	CSSBundle  string       `json:"cssBundle"`
	Imports    []importInfo `json:"imports"`
}

type importInfo struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	External bool   `json:"external"`
}

// EntryAssets are the public URLs a page needs to load one entry.
type EntryAssets struct {
	Name    string   `json:"name"`
	Scripts []string `json:"scripts"`
	Styles  []string `json:"styles"`
	Preload []string `json:"preload,omitempty"`
	Module  bool     `json:"module"`
}

// Result describes one finished bundle.
type Result struct {
	Entries  []EntryAssets
	Files    []string
	Warnings []Message
}

// Message is a build diagnostic with its source position, if known.
type Message struct {
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
	Text   string `json:"text"`
}

func (m Message) String() string {
	if m.File == "" {
		return m.Text
	}
	return fmt.Sprintf("%s:%d:%d: %s", m.File, m.Line, m.Column, m.Text)
}

// BuildError carries every error esbuild reported for a failed build.
type BuildError struct {
	Messages []Message
}

func (e *BuildError) Error() string {
	if len(e.Messages) == 1 {
		return "build failed: " + e.Messages[0].String()
	}
	lines := make([]string, 0, len(e.Messages))
	for _, m := range e.Messages {
		lines = append(lines, m.String())
	}
	return fmt.Sprintf("build failed with %d errors:\n%s", len(e.Messages), strings.Join(lines, "\n"))
}

func convertMessages(msgs []api.Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		msg := Message{Text: m.Text}
		if m.PluginName != "" {
			msg.Text = "[" + m.PluginName + "] " + m.Text
		}
		if m.Location != nil {
			msg.File = m.Location.File
			msg.Line = m.Location.Line
			msg.Column = m.Location.Column
		}
		out = append(out, msg)
	}
	return out
}
