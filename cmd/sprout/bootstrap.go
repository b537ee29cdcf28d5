package main

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"sprout/internal/config"
	"sprout/internal/discovery"
	"sprout/internal/evolution"
	"sprout/internal/generation"
	"sprout/internal/logging"
	"sprout/internal/skilltree"
	"sprout/internal/storage"
)

// runtime bundles everything a command needs after bootstrap.
type runtime struct {
	cfg         *config.Config
	logger      logging.Logger
	store       *storage.FileStore
	coordinator *evolution.Coordinator
}

// newRuntime builds the full evolution stack from config: persistence,
// trees (persisted state first, then seed files, then empty), tracker,
// generator, discoverer, coordinator.
func newRuntime(cfg *config.Config) (*runtime, error) {
	logger := logging.NewComponentLogger("Bootstrap")

	store, err := storage.NewFileStore(expandHome(cfg.Storage.Dir))
	if err != nil {
		return nil, err
	}

	general, err := loadTree(store, skilltree.TreeGeneral, cfg.Trees.GeneralSeed, logger)
	if err != nil {
		return nil, err
	}
	domain, err := loadTree(store, skilltree.TreeDomain, cfg.Trees.DomainSeed, logger)
	if err != nil {
		return nil, err
	}

	tracker := evolution.NewTracker(cfg.Fallback, logging.NewComponentLogger("Tracker"))
	state, err := store.LoadTrackerState()
	switch {
	case err == nil:
		tracker.Restore(state)
	case errors.Is(err, storage.ErrNotFound):
		// Fresh start.
	default:
		return nil, err
	}

	generator, err := buildGenerator(cfg.Generator)
	if err != nil {
		return nil, err
	}

	var discoverer discovery.Discoverer
	if cfg.Discovery.Mode == "http" {
		discoverer = discovery.NewHTTPDiscoverer(cfg.Discovery.Endpoint)
	}

	selector := evolution.NewSelector(nil, tracker)
	coordinator, err := evolution.NewCoordinator(
		cfg.Coordinator,
		general, domain,
		tracker, selector,
		cfg.Stages, cfg.Index,
		generator, discoverer, store,
		logging.NewComponentLogger("Coordinator"),
	)
	if err != nil {
		return nil, err
	}

	return &runtime{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		coordinator: coordinator,
	}, nil
}

// loadTree prefers persisted state over the seed file; a brand-new
// deployment without either starts from an empty graph.
func loadTree(store *storage.FileStore, id skilltree.TreeID, seedPath string, logger logging.Logger) (*skilltree.Graph, error) {
	g, err := store.LoadTree(id)
	if err == nil {
		logger.Info("loaded persisted %s tree (%d skills)", id, g.Len())
		return g, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	if seedPath != "" {
		g, err = skilltree.LoadSeed(id, expandHome(seedPath))
		if err != nil {
			return nil, fmt.Errorf("seed %s tree: %w", id, err)
		}
		logger.Info("seeded %s tree from %s (%d skills)", id, seedPath, g.Len())
		return g, nil
	}

	logger.Warn("no persisted state or seed for %s tree, starting empty", id)
	return skilltree.NewGraph(id), nil
}

func buildGenerator(cfg config.GeneratorConfig) (generation.Generator, error) {
	switch cfg.Mode {
	case "scripted":
		var rng *rand.Rand
		if cfg.Seed != 0 {
			rng = rand.New(rand.NewSource(cfg.Seed))
		}
		return generation.NewScripted(rng), nil
	case "http":
		return generation.NewHTTPGenerator(cfg.Endpoint), nil
	default:
		return nil, fmt.Errorf("unknown generator mode %q", cfg.Mode)
	}
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
