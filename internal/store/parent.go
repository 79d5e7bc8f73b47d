package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

type parentConfig struct {
	ParentID string `json:"parent_id"`
}

// ReadParentTrial returns the trial id recorded in the parent config, or ""
// when there is none.
func (s *Store) ReadParentTrial() (string, error) {
	path := s.Layout().ParentConfigPath
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read parent config: %w", err)
	}
	var cfg parentConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("parse parent config %s: %w", path, err)
	}
	return cfg.ParentID, nil
}

// WriteParentTrial records id as the parent of the next trial.
func (s *Store) WriteParentTrial(id string) error {
	if !s.Connected() {
		return ErrNotConnected
	}
	data, err := json.Marshal(parentConfig{ParentID: id})
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.Layout().ParentConfigPath, data, 0o644); err != nil {
		return fmt.Errorf("write parent config: %w", err)
	}
	return nil
}
