package main

import (
	"os"
	"path/filepath"
	"strings"
)

// fileState remembers the last watched club in a small text file.
type fileState struct {
	path string
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".clubwatch"
	}
	return filepath.Join(dir, "volleysmart", "last_club")
}

func (f fileState) SaveLastClub(clubID string) error {
	if f.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(f.path, []byte(clubID+"\n"), 0o600)
}

func (f fileState) LastClub() string {
	if f.path == "" {
		return ""
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
