// Package preview serves the working directory over HTTP so the manifest
// and its FlatGeobuf artifacts can be checked in a browser.
package preview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/tingold/geocouple/flatgeobuf"
	"github.com/tingold/geocouple/internal/logger"
	"github.com/tingold/geocouple/internal/store"
)

var artifactName = regexp.MustCompile(`^couple\d+_(zone|points)\.fgb$`)

type Server struct {
	ws       *store.Workspace
	manifest *store.ManifestStore
	log      *slog.Logger
}

func New(ws *store.Workspace, manifest *store.ManifestStore, l *slog.Logger) *Server {
	return &Server{ws: ws, manifest: manifest, log: logger.Or(l)}
}

// Handler returns the preview routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(logger.AccessMiddleware(s.log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/data/"+store.ManifestName, s.handleManifest)
	r.Get("/data/{file}", s.handleArtifact)
	r.Get("/data/{file}/features", s.handleFeatures)
	r.Handle("/*", s.static())
	return r
}

// staticExt lists the extensions a map page and its assets may use.
var staticExt = map[string]bool{
	".html": true, ".htm": true, ".js": true, ".mjs": true, ".css": true,
	".map": true, ".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".svg": true, ".webp": true, ".ico": true, ".woff": true, ".woff2": true,
}

// static serves the web page and its assets from the working directory.
// The session file, the scratch directory, dot files and directory
// listings stay private; data files have their own routes.
func (s *Server) static() http.Handler {
	files := http.FileServer(http.Dir(s.ws.Root()))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.public(r.URL.Path) {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}

func (s *Server) public(urlPath string) bool {
	p := path.Clean("/" + urlPath)
	if p == "/" {
		info, err := os.Stat(filepath.Join(s.ws.Root(), "index.html"))
		return err == nil && info.Mode().IsRegular()
	}
	segments := strings.Split(strings.TrimPrefix(p, "/"), "/")
	switch segments[0] {
	case store.DataDirName, filepath.Base(s.ws.TempDir()):
		return false
	}
	for _, seg := range segments {
		if strings.HasPrefix(seg, ".") {
			return false
		}
	}
	return staticExt[strings.ToLower(path.Ext(p))]
}

func (s *Server) handleManifest(w http.ResponseWriter, _ *http.Request) {
	m, err := s.manifest.Read()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(m); err != nil {
		s.log.Warn("manifest_encode_failed", "error", err)
	}
}

// artifactPath resolves the {file} parameter to an existing artifact.
func (s *Server) artifactPath(r *http.Request) (string, bool) {
	name := chi.URLParam(r, "file")
	if !artifactName.MatchString(name) {
		return "", false
	}
	p := filepath.Join(s.ws.DataDir(), name)
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return p, true
}

// handleArtifact serves the raw file. Range requests are honoured so
// FlatGeobuf clients can read the index and fetch features selectively.
func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	p, ok := s.artifactPath(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	f, err := os.Open(p)
	if err != nil {
		http.Error(w, "artifact unavailable", http.StatusInternalServerError)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		http.Error(w, "artifact unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// handleFeatures returns the artifact's features as GeoJSON, limited to
// ?bbox=minLon,minLat,maxLon,maxLat when given.
func (s *Server) handleFeatures(w http.ResponseWriter, r *http.Request) {
	p, ok := s.artifactPath(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	rd, err := flatgeobuf.NewReader(p)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer rd.Close()

	var fc *geojson.FeatureCollection
	if raw := r.URL.Query().Get("bbox"); raw != "" {
		b, perr := parseBBox(raw)
		if perr != nil {
			http.Error(w, perr.Error(), http.StatusBadRequest)
			return
		}
		fc, err = rd.Search(b)
	} else {
		fc, err = rd.ReadAll()
	}
	if errors.Is(err, flatgeobuf.ErrNoIndex) {
		http.Error(w, "artifact has no spatial index", http.StatusUnprocessableEntity)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	_, _ = w.Write(data)
}

func parseBBox(raw string) (orb.Bound, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bbox needs 4 numbers, got %d", len(parts))
	}
	var v [4]float64
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("bbox value %q: %w", part, err)
		}
		v[i] = f
	}
	if v[0] > v[2] || v[1] > v[3] {
		return orb.Bound{}, fmt.Errorf("bbox min exceeds max")
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}

// ListenAndServe serves until ctx is cancelled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("preview_listening", "addr", addr, "root", s.ws.Root())
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("preview: shutdown: %w", err)
		}
		s.log.Info("preview_stopped")
		return nil
	}
}
