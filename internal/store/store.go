package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/thatsimonsguy/heater-controller/internal/model"
)

// Store persists operator settings as JSON so they survive restarts.
type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

// Load returns the saved settings. A missing file reports ok=false with no error.
func (s *Store) Load() (model.Settings, bool, error) {
	file, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return model.Settings{}, false, nil
	}
	if err != nil {
		return model.Settings{}, false, err
	}
	defer file.Close()

	var saved struct {
		AutoOffMode        string `json:"autoOffMode"`
		AutoOnMode         string `json:"autoOnMode"`
		HealthAlertEnabled bool   `json:"healthAlertEnabled"`
	}
	if err := json.NewDecoder(file).Decode(&saved); err != nil {
		return model.Settings{}, false, fmt.Errorf("decode %s: %w", s.path, err)
	}

	off, err := model.ParseMode(saved.AutoOffMode)
	if err != nil {
		return model.Settings{}, false, fmt.Errorf("autoOffMode: %w", err)
	}
	on, err := model.ParseMode(saved.AutoOnMode)
	if err != nil {
		return model.Settings{}, false, fmt.Errorf("autoOnMode: %w", err)
	}
	return model.Settings{AutoOffMode: off, AutoOnMode: on, HealthAlertEnabled: saved.HealthAlertEnabled}, true, nil
}

// Save writes to a temp file and renames it over the old one.
func (s *Store) Save(settings model.Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	tmpPath := s.path + ".tmp"

	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(settings); err != nil {
		file.Close()
		return err
	}
	file.Sync()
	file.Close()

	return os.Rename(tmpPath, s.path)
}
