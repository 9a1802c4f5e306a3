package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

const etagCap = 64

// HandleRuns serves the list of result runs.
func (s *ServerContext) HandleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.Runs()
	if err != nil {
		log.Error().Err(err).Msg("Failed to list runs")
		http.Error(w, "cannot list runs", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	// client disconnects are not actionable
	_ = json.NewEncoder(w).Encode(runs)
}

// HandleRunFile serves result files and tiles of a run.
//
//	/runs/{run}/{name}.geojson
//	/runs/{run}/{name}.webp
//	/runs/{run}/tiles/{z}/{x}/{y}.webp
func (s *ServerContext) HandleRunFile(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 3 || parts[0] != "runs" {
		http.NotFound(w, r)
		return
	}
	for _, p := range parts[1:] {
		if !safeSegment(p) {
			http.NotFound(w, r)
			return
		}
	}

	run := parts[1]

	if len(parts) == 3 {
		name := parts[2]
		switch filepath.Ext(name) {
		case ".geojson":
			if !s.serveFile(w, r, filepath.Join(s.Root, run, name), "application/geo+json") {
				http.NotFound(w, r)
			}
		case ".webp":
			if !s.serveFile(w, r, filepath.Join(s.Root, run, name), "image/webp") {
				http.NotFound(w, r)
			}
		default:
			http.NotFound(w, r)
		}
		return
	}

	// runs, run, tiles, z, x, y.webp
	if len(parts) == 6 && parts[2] == "tiles" && tileIndex(parts[3], parts[4], parts[5]) {
		path := filepath.Join(s.Root, run, "tiles", parts[3], parts[4], parts[5])
		if s.serveFile(w, r, path, "image/webp") {
			return
		}

		w.Header().Set("Content-Type", "image/webp")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_, _ = w.Write(s.TransparentTile)
		return
	}

	http.NotFound(w, r)
}

func safeSegment(p string) bool {
	return p != "" && p != "." && p != ".." && !strings.ContainsAny(p, `/\`) && !strings.HasPrefix(p, ".")
}

func tileIndex(z, x, y string) bool {
	y, ok := strings.CutSuffix(y, ".webp")
	if !ok {
		return false
	}
	for _, v := range []string{z, x, y} {
		if n, err := strconv.Atoi(v); err != nil || n < 0 {
			return false
		}
	}
	return true
}

// serveFile serves a file from disk with an ETag built from its size and
// modification time. Returns false when the file does not exist.
func (s *ServerContext) serveFile(w http.ResponseWriter, r *http.Request, path string, contentType string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}

	buf := make([]byte, 0, etagCap)
	buf = append(buf, '"')
	buf = strconv.AppendInt(buf, info.Size(), 16)
	buf = append(buf, '-')
	buf = strconv.AppendInt(buf, info.ModTime().UnixNano(), 16)
	buf = append(buf, '"')
	etag := string(buf)

	if match := r.Header.Get("If-None-Match"); match == etag {
		w.WriteHeader(http.StatusNotModified)
		return true
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, no-cache")
	w.Header().Set("Content-Type", contentType)

	http.ServeFile(w, r, path)
	return true
}
