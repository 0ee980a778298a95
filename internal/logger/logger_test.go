package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, false)

	log.Debug().Msg("hidden")
	require.Zero(t, buf.Len())

	log.Info().Str("page", "index.html").Msg("Generated page")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "info", line["level"])
	require.Equal(t, "index.html", line["page"])
	require.Equal(t, "Generated page", line["message"])
	require.Contains(t, line, "time")
}

func TestNewDebugConsole(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, true)

	log.Debug().Str("dir", "views").Msg("Watching directory")
	out := buf.String()
	require.Contains(t, out, "DBG")
	require.Contains(t, out, "Watching directory")
	require.Contains(t, out, "views")
}
