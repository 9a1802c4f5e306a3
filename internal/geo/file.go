package geo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// WriteOptions controls how a collection is serialised.
type WriteOptions struct {
	Indent bool
}

// ReadFeatureCollection loads a GeoJSON feature collection from disk.
func ReadFeatureCollection(path string) (*FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	fc, skipped, err := UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	if skipped > 0 {
		log.Warn().
			Str("path", path).
			Int("skipped", skipped).
			Msg("Skipped features without polygon geometry")
	}

	return fc, nil
}

// EncodeFeatureCollection serialises fc according to opts.
func EncodeFeatureCollection(fc *FeatureCollection, opts WriteOptions) ([]byte, error) {
	data, err := MarshalFeatureCollection(fc)
	if err != nil {
		return nil, err
	}

	if opts.Indent {
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", "  "); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	return data, nil
}

// WriteFeatureCollection writes fc to path atomically: the data goes to a
// temporary file in the same directory which is renamed into place.
func WriteFeatureCollection(path string, fc *FeatureCollection, opts WriteOptions) error {
	data, err := EncodeFeatureCollection(fc, opts)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// leftovers only exist on failure
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
