// internal/server/server.go
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"pagepack/internal/builder"
	"pagepack/internal/config"
	"pagepack/internal/util"
)

// BuildFunc runs one build.
type BuildFunc func(ctx context.Context, opts builder.BuildOptions) (*builder.Report, error)

const debounceDuration = 200 * time.Millisecond

// Server rebuilds on source changes and serves the output directory with
// live reload.
type Server struct {
	cfg     config.Config
	build   BuildFunc
	hub     *Hub
	metrics *buildMetrics
	log     zerolog.Logger

	root       string
	outdir     string
	configPath string
}

func New(cfg config.Config, configPath string, build BuildFunc, log zerolog.Logger) (*Server, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, err
	}
	hub := newHub(log)
	return &Server{
		cfg:        cfg,
		build:      build,
		hub:        hub,
		metrics:    newBuildMetrics(hub),
		log:        log,
		root:       root,
		outdir:     filepath.Join(root, cfg.Output.Path),
		configPath: configPath,
	}, nil
}

// Run does an initial build, then watches and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if _, err := s.runBuild(ctx); err != nil {
		return fmt.Errorf("initial build failed: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("could not create file watcher: %w", err)
	}
	defer watcher.Close()

	for _, dir := range s.watchRoots() {
		if err := s.addWatchTree(watcher, dir); err != nil {
			return fmt.Errorf("failed to watch directory %s: %w", dir, err)
		}
	}

	go s.watchForChanges(ctx, watcher)

	addr := net.JoinHostPort(s.cfg.DevServer.Host, strconv.Itoa(s.cfg.DevServer.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("could not listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: time.Second,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024,
	}

	localIP := ""
	if s.cfg.DevServer.UseLocalIP {
		localIP = util.LocalIP()
	}
	url := util.BrowseURL(s.cfg.DevServer.Host, s.cfg.DevServer.Port, localIP)
	s.log.Info().Str("url", url).Str("dir", s.outdir).Msg("Serving site, press Ctrl+C to stop")
	if s.cfg.DevServer.Open {
		if err := util.OpenBrowser(url); err != nil {
			s.log.Warn().Err(err).Msg("Could not open browser")
		}
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.hub.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("Server shutdown")
		}
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler serves the output directory with the live-reload endpoint and
// /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/__pagepack/ws", s.hub.serveWs)
	mux.Handle("/__pagepack/metrics", s.metrics.handler())

	fileServer := http.FileServer(http.Dir(s.outdir))
	mux.Handle("/", liveReloadWrapper(fileServer))

	var h http.Handler = cors.AllowAll().Handler(mux)
	if s.cfg.DevServer.Compress {
		h = gzhttp.GzipHandler(h)
	}
	return h
}

func (s *Server) runBuild(ctx context.Context) (*builder.Report, error) {
	started := time.Now()
	report, err := s.build(s.log.WithContext(ctx), builder.BuildOptions{CleanDestination: true})
	pages := 0
	if report != nil {
		pages = len(report.Pages)
	}
	s.metrics.observe(time.Since(started), pages, err)
	if err != nil {
		return nil, err
	}
	s.logStats(report)
	return report, nil
}

func (s *Server) logStats(report *builder.Report) {
	switch s.cfg.DevServer.Stats {
	case "none":
		return
	case "normal":
		for _, f := range report.Files {
			s.log.Info().Str("file", f).Msg("Emitted")
		}
	}
	s.log.Info().
		Str("build", report.ID).
		Int("pages", len(report.Pages)).
		Int("files", len(report.Files)).
		Dur("duration", report.Duration).
		Msg("Build complete")
}

// rebuild runs after a batch of changes and tells clients what to do.
func (s *Server) rebuild(ctx context.Context, changed []string) {
	s.log.Info().Strs("changed", changed).Msg("Change detected, rebuilding")

	prev := s.hub.State()
	report, err := s.runBuild(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Error rebuilding site")
		if s.cfg.DevServer.Overlay.Errors {
			msg := &Message{Type: MessageError, Text: err.Error()}
			s.hub.SetState(msg)
			s.hub.Broadcast(*msg)
		}
		return
	}

	var warning *Message
	if s.cfg.DevServer.Overlay.Warnings && len(report.Warnings) > 0 {
		lines := make([]string, 0, len(report.Warnings))
		for _, w := range report.Warnings {
			lines = append(lines, w.String())
		}
		warning = &Message{Type: MessageWarning, Text: strings.Join(lines, "\n")}
	}
	s.hub.SetState(warning)

	if s.cfg.DevServer.Hot && (prev == nil || prev.Type != MessageError) && stylesOnly(changed) {
		s.hub.Broadcast(Message{Type: MessageCSS})
	} else {
		s.hub.Broadcast(Message{Type: MessageReload})
	}
	// Sent as well as replayed: clients that swap styles never reconnect.
	if warning != nil {
		s.hub.Broadcast(*warning)
	}
}

func stylesOnly(changed []string) bool {
	if len(changed) == 0 {
		return false
	}
	for _, name := range changed {
		switch strings.ToLower(filepath.Ext(name)) {
		case ".css", ".scss", ".sass":
		default:
			return false
		}
	}
	return true
}

func (s *Server) watchForChanges(ctx context.Context, watcher *fsnotify.Watcher) {
	pending := map[string]bool{}
	timer := time.NewTimer(debounceDuration)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if s.ignored(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := s.addWatchTree(watcher, event.Name); err != nil {
						s.log.Warn().Err(err).Str("dir", event.Name).Msg("Could not watch new directory")
					}
				}
			}
			pending[event.Name] = true
			timer.Reset(debounceDuration)
		case <-timer.C:
			changed := make([]string, 0, len(pending))
			for name := range pending {
				changed = append(changed, name)
			}
			pending = map[string]bool{}
			s.rebuild(ctx, changed)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn().Err(err).Msg("Watcher error")
		}
	}
}

// watchRoots lists the directories whose changes trigger a rebuild: the
// top-level directory of every entry import, the views and partials, and
// the directory holding the config file.
func (s *Server) watchRoots() []string {
	seen := map[string]bool{}
	var roots []string
	add := func(p string) {
		if p == "" {
			return
		}
		if !filepath.IsAbs(p) {
			p = filepath.Join(s.root, p)
		}
		p = filepath.Clean(p)
		info, err := os.Stat(p)
		if err != nil || !info.IsDir() || seen[p] {
			return
		}
		seen[p] = true
		roots = append(roots, p)
	}

	for _, e := range s.cfg.Entries {
		for _, imp := range e.Import {
			rel := filepath.ToSlash(filepath.Clean(imp))
			top, _, found := strings.Cut(rel, "/")
			if !found || top == ".." {
				add(filepath.Dir(imp))
				continue
			}
			add(top)
		}
	}
	add(s.cfg.Views.Dir)
	add(s.cfg.Views.Partials)
	if s.configPath != "" {
		add(filepath.Dir(s.configPath))
	}
	return roots
}

// addWatchTree watches dir and every directory below it, except the output
// directory, node_modules and hidden directories.
func (s *Server) addWatchTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && s.ignored(p) {
			return filepath.SkipDir
		}
		// The root directory holds the config file; its children are
		// covered by the other roots.
		if p != dir && dir == s.root {
			return filepath.SkipDir
		}
		if err := watcher.Add(p); err != nil {
			return err
		}
		s.log.Debug().Str("dir", p).Msg("Watching directory")
		return nil
	})
}

func (s *Server) ignored(p string) bool {
	abs, err := filepath.Abs(p)
	if err != nil {
		return true
	}
	if abs == s.outdir || strings.HasPrefix(abs, s.outdir+string(filepath.Separator)) {
		return true
	}
	base := filepath.Base(abs)
	if base == "node_modules" || (strings.HasPrefix(base, ".") && base != ".") {
		return true
	}
	// Editor swap and backup files.
	return strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp")
}

func liveReloadWrapper(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")

		isHTML := strings.HasSuffix(r.URL.Path, ".html") || strings.HasSuffix(r.URL.Path, "/")
		if !isHTML {
			next.ServeHTTP(w, r)
			return
		}

		iw := newInterceptingWriter(w)
		next.ServeHTTP(iw, r)

		for key, values := range iw.Header() {
			for _, value := range values {
				w.Header().Add(key, value)
			}
		}

		bodyBytes := iw.body.Bytes()
		if iw.statusCode != http.StatusOK {
			w.WriteHeader(iw.statusCode)
			w.Write(bodyBytes)
			return
		}

		injected := injectReloadScript(bodyBytes)
		w.Header().Set("Content-Length", fmt.Sprint(len(injected)))
		w.WriteHeader(iw.statusCode)
		w.Write(injected)
	})
}

func injectReloadScript(body []byte) []byte {
	if i := bytes.LastIndex(body, []byte("</body>")); i >= 0 {
		out := make([]byte, 0, len(body)+len(liveReloadScript))
		out = append(out, body[:i]...)
		out = append(out, liveReloadScript...)
		return append(out, body[i:]...)
	}
	return append(body, liveReloadScript...)
}

type interceptingWriter struct {
	http.ResponseWriter
	body       *bytes.Buffer
	statusCode int
	header     http.Header
}

func newInterceptingWriter(w http.ResponseWriter) *interceptingWriter {
	return &interceptingWriter{
		ResponseWriter: w,
		body:           new(bytes.Buffer),
		header:         make(http.Header),
		statusCode:     http.StatusOK,
	}
}

func (iw *interceptingWriter) Header() http.Header {
	return iw.header
}

func (iw *interceptingWriter) Write(b []byte) (int, error) {
	return iw.body.Write(b)
}

func (iw *interceptingWriter) WriteHeader(statusCode int) {
	iw.statusCode = statusCode
}

const liveReloadScript = `<script>
(function() {
  var overlay;
  function hideOverlay() {
    if (overlay) { overlay.remove(); overlay = null; }
  }
  function showOverlay(kind, text) {
    hideOverlay();
    overlay = document.createElement("div");
    overlay.style.cssText = "position:fixed;inset:0;z-index:2147483647;overflow:auto;padding:2em;" +
      "background:rgba(0,0,0,.85);color:" + (kind === "error" ? "#ff6b6b" : "#ffd166") +
      ";font:13px/1.5 monospace;white-space:pre-wrap";
    overlay.textContent = text;
    overlay.onclick = hideOverlay;
    document.body.appendChild(overlay);
  }
  function swapStyles() {
    var links = document.querySelectorAll('link[rel="stylesheet"]');
    for (var i = 0; i < links.length; i++) {
      var url = new URL(links[i].href);
      url.searchParams.set("t", Date.now());
      links[i].href = url.toString();
    }
  }
  var proto = window.location.protocol === "https:" ? "wss://" : "ws://";
  var socket = new WebSocket(proto + window.location.host + "/__pagepack/ws");
  socket.onmessage = function(event) {
    var msg = JSON.parse(event.data);
    if (msg.type === "reload") {
      window.location.reload();
    } else if (msg.type === "css") {
      // Cleared now: a warning for this build may follow before the fetch.
      hideOverlay();
      // Hashed names change on every build; a full reload picks them up
      // when the page no longer matches.
      fetch(window.location.href, {cache: "no-store"}).then(function(r) { return r.text(); }).then(function(html) {
        var doc = new DOMParser().parseFromString(html, "text/html");
        var fresh = doc.querySelectorAll('link[rel="stylesheet"]');
        var links = document.querySelectorAll('link[rel="stylesheet"]');
        if (fresh.length !== links.length) { window.location.reload(); return; }
        for (var i = 0; i < links.length; i++) { links[i].href = fresh[i].href; }
        swapStyles();
      });
    } else if (msg.type === "error" || msg.type === "warning") {
      showOverlay(msg.type, msg.text);
    }
  };
  socket.onerror = function() {
    console.error("Live reload connection error. Please restart 'pagepack serve'.");
  };
})();
</script>
`
