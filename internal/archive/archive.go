// Package archive persists the JSON artifacts: the per-channel reading
// archive, the prediction model record, and the current-conditions snapshot.
// Writes go through a temp file and rename so a crash mid-run never leaves a
// half-written artifact for the website to pick up.
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/oxriver/flowmodel/internal/model"
	"github.com/oxriver/flowmodel/internal/series"
)

// LoadStore reads a persisted archive back into per-channel map form. A
// missing file yields an empty store: the first run starts from nothing.
// Any other read or decode failure is a hard error; an unreadable archive
// is the one condition that aborts a run.
func LoadStore(path string) (map[string]series.TimeSeries, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]series.TimeSeries{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}

	var a model.Archive
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode archive %s: %w", path, err)
	}

	store := make(map[string]series.TimeSeries, len(a.Channels))
	for name, readings := range a.Channels {
		store[name] = series.FromReadings(readings)
	}
	return store, nil
}

// SaveArchive writes the archive artifact.
func SaveArchive(path string, a model.Archive) error {
	return writeJSON(path, a)
}

// SaveModel writes the prediction model artifact.
func SaveModel(path string, rec model.Record) error {
	return writeJSON(path, rec)
}

// SaveCurrent writes the current-conditions snapshot.
func SaveCurrent(path string, c model.CurrentConditions) error {
	return writeJSON(path, c)
}

// LoadCurrent reads the previous snapshot, used as a fallback source when a
// live fetch fails. A missing file returns ok=false.
func LoadCurrent(path string) (model.CurrentConditions, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return model.CurrentConditions{}, false, nil
	}
	if err != nil {
		return model.CurrentConditions{}, false, fmt.Errorf("read snapshot: %w", err)
	}

	var c model.CurrentConditions
	if err := json.Unmarshal(data, &c); err != nil {
		return model.CurrentConditions{}, false, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return c, true, nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	data = append(data, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
