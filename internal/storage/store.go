// Package storage persists the skill trees and the failure-tracker state as
// JSON files, using tmp+rename so a crash mid-write never corrupts the last
// good state.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"sprout/internal/evolution"
	"sprout/internal/skilltree"
)

// Store is the persistence collaborator contract consumed by the core.
type Store interface {
	LoadTree(id skilltree.TreeID) (*skilltree.Graph, error)
	SaveTree(g *skilltree.Graph) error
	LoadTrackerState() (evolution.State, error)
	SaveTrackerState(state evolution.State) error
}

// ErrNotFound reports that no persisted state exists yet for the requested
// tree or tracker.
var ErrNotFound = errors.New("no persisted state")

// FileStore keeps one JSON file per tree plus one for the tracker, all under
// a single data directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the data directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) treePath(id skilltree.TreeID) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_tree.json", id))
}

func (s *FileStore) trackerPath() string {
	return filepath.Join(s.dir, "failure_tracker.json")
}

// treeFile is the on-disk shape of a persisted graph. Order is stored
// explicitly so insertion-order tie-breaks survive the round trip.
type treeFile struct {
	Tree   skilltree.TreeID            `json:"tree"`
	Order  []string                    `json:"order"`
	Skills map[string]*skilltree.Skill `json:"skills"`
}

// LoadTree reads a persisted graph. Returns ErrNotFound when the tree has
// never been saved.
func (s *FileStore) LoadTree(id skilltree.TreeID) (*skilltree.Graph, error) {
	data, err := os.ReadFile(s.treePath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("tree %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read tree %s: %w", id, err)
	}

	var file treeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse tree %s: %w", id, err)
	}

	g := skilltree.NewGraph(id)
	for _, skillID := range file.Order {
		skill, ok := file.Skills[skillID]
		if !ok {
			return nil, fmt.Errorf("tree %s: order references unknown skill %s", id, skillID)
		}
		if err := g.RestoreSkill(skill); err != nil {
			return nil, fmt.Errorf("tree %s: %w", id, err)
		}
	}
	return g, nil
}

// SaveTree writes the graph atomically.
func (s *FileStore) SaveTree(g *skilltree.Graph) error {
	file := treeFile{
		Tree:   g.ID(),
		Order:  g.IDs(),
		Skills: make(map[string]*skilltree.Skill, g.Len()),
	}
	for _, skill := range g.Skills() {
		file.Skills[skill.ID] = skill
	}
	return s.writeJSON(s.treePath(g.ID()), file)
}

// LoadTrackerState reads the persisted failure tracker state.
func (s *FileStore) LoadTrackerState() (evolution.State, error) {
	var state evolution.State
	data, err := os.ReadFile(s.trackerPath())
	if errors.Is(err, fs.ErrNotExist) {
		return state, ErrNotFound
	}
	if err != nil {
		return state, fmt.Errorf("read tracker state: %w", err)
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("parse tracker state: %w", err)
	}
	return state, nil
}

// SaveTrackerState writes the tracker state atomically.
func (s *FileStore) SaveTrackerState(state evolution.State) error {
	return s.writeJSON(s.trackerPath(), state)
}

// writeJSON marshals v and replaces path via tmp+rename.
func (s *FileStore) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(tmp), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
