// Package server serves pipeline results over HTTP.
package server

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chai2010/webp"
	"github.com/rs/zerolog/log"
)

// ServerContext holds dependencies for request handlers.
type ServerContext struct {
	// Root holds one directory per run.
	Root            string
	TransparentTile []byte
}

// Run describes one result directory.
type Run struct {
	Name     string   `json:"name"`
	Features []string `json:"features"`
	Previews []string `json:"previews"`
	Tiles    bool     `json:"tiles"`
}

// NewServerContext checks the results root and prepares the fallback tile.
func NewServerContext(root string, tileSize int) (*ServerContext, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	if tileSize <= 0 {
		tileSize = 256
	}

	var buf bytes.Buffer
	blank := image.NewNRGBA(image.Rect(0, 0, tileSize, tileSize))
	if err := webp.Encode(&buf, blank, &webp.Options{Lossless: true}); err != nil {
		return nil, fmt.Errorf("encode transparent tile: %w", err)
	}

	log.Info().Str("root", root).Msg("Server context initialized")

	return &ServerContext{Root: root, TransparentTile: buf.Bytes()}, nil
}

// Runs scans Root and returns the runs that hold at least one result file,
// sorted by name.
func (s *ServerContext) Runs() ([]Run, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		return nil, err
	}

	runs := make([]Run, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}

		run, err := s.scanRun(e.Name())
		if err != nil {
			log.Warn().Err(err).Str("run", e.Name()).Msg("Skipping unreadable run")
			continue
		}
		if len(run.Features) == 0 && len(run.Previews) == 0 && !run.Tiles {
			log.Trace().Str("run", e.Name()).Msg("Run skipped: no results")
			continue
		}

		runs = append(runs, run)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Name < runs[j].Name })
	return runs, nil
}

func (s *ServerContext) scanRun(name string) (Run, error) {
	dir := filepath.Join(s.Root, name)
	files, err := os.ReadDir(dir)
	if err != nil {
		return Run{}, err
	}

	run := Run{Name: name, Features: []string{}, Previews: []string{}}
	for _, f := range files {
		switch {
		case f.IsDir() && f.Name() == "tiles":
			run.Tiles = true
		case f.IsDir() || strings.HasPrefix(f.Name(), "."):
		case strings.HasSuffix(f.Name(), ".geojson"):
			run.Features = append(run.Features, f.Name())
		case strings.HasSuffix(f.Name(), ".webp"):
			run.Previews = append(run.Previews, f.Name())
		}
	}

	return run, nil
}
