package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"pagepack/internal/builder"
	"pagepack/internal/bundler"
	"pagepack/internal/config"
	"pagepack/internal/views"
)

type fakeBuild struct {
	calls    int
	err      error
	warnings []bundler.Message
}

func (f *fakeBuild) run(ctx context.Context, opts builder.BuildOptions) (*builder.Report, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &builder.Report{
		ID:       "test",
		Pages:    []views.PageConfig{{Filename: "index.html"}},
		Files:    []string{"index.html"},
		Warnings: f.warnings,
	}, nil
}

func newTestServer(t *testing.T, build *fakeBuild) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Root = t.TempDir()
	cfg.DevServer.Compress = false

	srv, err := New(cfg, "", build.run, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(srv.outdir, 0o755))
	return srv
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestHandlerInjectsReloadScript(t *testing.T) {
	srv := newTestServer(t, &fakeBuild{})
	writeFile(t, filepath.Join(srv.outdir, "index.html"), "<html><body><h1>Home</h1></body></html>")
	writeFile(t, filepath.Join(srv.outdir, "about.html"), "<p>About</p>")
	writeFile(t, filepath.Join(srv.outdir, "assets", "js", "app.js"), "console.log(1)")

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, body := get(t, ts.URL+"/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "/__pagepack/ws")
	require.Less(t, strings.Index(body, "<script>"), strings.Index(body, "</body>"))
	require.Equal(t, "no-cache, no-store, must-revalidate", resp.Header.Get("Cache-Control"))

	_, body = get(t, ts.URL+"/about.html")
	require.True(t, strings.HasPrefix(body, "<p>About</p>"))
	require.Contains(t, body, "/__pagepack/ws")

	_, body = get(t, ts.URL+"/assets/js/app.js")
	require.Equal(t, "console.log(1)", body)

	resp, body = get(t, ts.URL+"/missing.html")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.NotContains(t, body, "/__pagepack/ws")
}

func TestHandlerCompress(t *testing.T) {
	srv := newTestServer(t, &fakeBuild{})
	srv.cfg.DevServer.Compress = true
	writeFile(t, filepath.Join(srv.outdir, "index.html"), "<html><body>"+strings.Repeat("<p>hello</p>", 200)+"</body></html>")

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")
	resp, err := http.DefaultTransport.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
}

func TestMetricsEndpoint(t *testing.T) {
	build := &fakeBuild{}
	srv := newTestServer(t, build)
	_, err := srv.runBuild(context.Background())
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, body := get(t, ts.URL+"/__pagepack/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, `pagepack_builds_total{result="success"} 1`)
	require.Contains(t, body, "pagepack_pages 1")
	require.Contains(t, body, "pagepack_reload_clients 0")
}

func dial(t *testing.T, srv *Server, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/__pagepack/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return srv.hub.Len() == 1 }, time.Second, 10*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestRebuildBroadcasts(t *testing.T) {
	build := &fakeBuild{}
	srv := newTestServer(t, build)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	conn := dial(t, srv, ts)
	ctx := context.Background()

	srv.rebuild(ctx, []string{"src/js/app.js"})
	require.Equal(t, Message{Type: MessageReload}, readMessage(t, conn))

	srv.rebuild(ctx, []string{"src/scss/index.scss"})
	require.Equal(t, Message{Type: MessageCSS}, readMessage(t, conn))

	build.err = errors.New("boom")
	srv.rebuild(ctx, []string{"src/js/app.js"})
	msg := readMessage(t, conn)
	require.Equal(t, MessageError, msg.Type)
	require.Equal(t, "boom", msg.Text)

	// After a failed build a style change needs a full reload.
	build.err = nil
	srv.rebuild(ctx, []string{"src/scss/index.scss"})
	require.Equal(t, Message{Type: MessageReload}, readMessage(t, conn))
	require.Nil(t, srv.hub.State())
	require.Equal(t, 4, build.calls)
}

func TestRebuildStylesOnlyWithWarnings(t *testing.T) {
	build := &fakeBuild{warnings: []bundler.Message{{File: "src/scss/index.scss", Line: 7, Text: "deprecated division"}}}
	srv := newTestServer(t, build)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	conn := dial(t, srv, ts)

	srv.rebuild(context.Background(), []string{"src/scss/index.scss"})
	require.Equal(t, Message{Type: MessageCSS}, readMessage(t, conn))
	msg := readMessage(t, conn)
	require.Equal(t, MessageWarning, msg.Type)
	require.Contains(t, msg.Text, "deprecated division")

	// A clean build clears the replayed warning.
	build.warnings = nil
	srv.rebuild(context.Background(), []string{"src/scss/index.scss"})
	require.Equal(t, Message{Type: MessageCSS}, readMessage(t, conn))
	require.Nil(t, srv.hub.State())
}

func TestRebuildWithoutHot(t *testing.T) {
	srv := newTestServer(t, &fakeBuild{})
	srv.cfg.DevServer.Hot = false
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	conn := dial(t, srv, ts)

	srv.rebuild(context.Background(), []string{"src/scss/index.scss"})
	require.Equal(t, Message{Type: MessageReload}, readMessage(t, conn))
}

func TestStateReplayedToNewClients(t *testing.T) {
	build := &fakeBuild{warnings: []bundler.Message{{File: "src/js/app.js", Line: 3, Text: "unused"}}}
	srv := newTestServer(t, build)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	srv.rebuild(context.Background(), []string{"src/js/app.js"})
	state := srv.hub.State()
	require.NotNil(t, state)
	require.Equal(t, MessageWarning, state.Type)

	conn := dial(t, srv, ts)
	msg := readMessage(t, conn)
	require.Equal(t, MessageWarning, msg.Type)
	require.Contains(t, msg.Text, "unused")
}

func TestErrorOverlayDisabled(t *testing.T) {
	build := &fakeBuild{err: errors.New("boom")}
	srv := newTestServer(t, build)
	srv.cfg.DevServer.Overlay.Errors = false

	srv.rebuild(context.Background(), []string{"src/js/app.js"})
	require.Nil(t, srv.hub.State())
}

func TestStylesOnly(t *testing.T) {
	tests := []struct {
		changed []string
		want    bool
	}{
		{nil, false},
		{[]string{"a.scss"}, true},
		{[]string{"a.SASS", "b.css"}, true},
		{[]string{"a.scss", "views/index.html"}, false},
		{[]string{"app.js"}, false},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, stylesOnly(tt.changed), "%v", tt.changed)
	}
}

func TestInjectReloadScript(t *testing.T) {
	out := string(injectReloadScript([]byte("<body><p>x</p></body></html>")))
	require.True(t, strings.HasPrefix(out, "<body><p>x</p>"+liveReloadScript))
	require.True(t, strings.HasSuffix(out, "</body></html>"))

	out = string(injectReloadScript([]byte("<p>fragment</p>")))
	require.Equal(t, "<p>fragment</p>"+liveReloadScript, out)
}

func TestIgnored(t *testing.T) {
	srv := newTestServer(t, &fakeBuild{})
	root := srv.root

	require.True(t, srv.ignored(srv.outdir))
	require.True(t, srv.ignored(filepath.Join(srv.outdir, "index.html")))
	require.True(t, srv.ignored(filepath.Join(root, "node_modules")))
	require.True(t, srv.ignored(filepath.Join(root, ".git")))
	require.True(t, srv.ignored(filepath.Join(root, "views", "index.html~")))
	require.True(t, srv.ignored(filepath.Join(root, "views", ".index.html.swp")))
	require.False(t, srv.ignored(filepath.Join(root, "views", "index.html")))
	require.False(t, srv.ignored(filepath.Join(root, "dist-old", "x.html")))
}

func TestWatchRoots(t *testing.T) {
	srv := newTestServer(t, &fakeBuild{})
	root := srv.root
	for _, dir := range []string{"src/js", "src/scss", "views/partials"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	}
	srv.configPath = filepath.Join(root, config.DefaultFile)

	require.Equal(t, []string{
		filepath.Join(root, "src"),
		filepath.Join(root, "views"),
		filepath.Join(root, "views", "partials"),
		root,
	}, srv.watchRoots())
}
