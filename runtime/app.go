package runtime

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
)

// App holds the chains available to entrypoints (HTTP, CLI).
type App struct {
	Container *Container

	l       *slog.Logger
	loaders []ChainLoader
	mu      sync.RWMutex
	chains  map[string]*Chain
}

func NewApp(container *Container, l *slog.Logger, loaders ...ChainLoader) *App {
	if container == nil {
		container = NewContainer()
	}
	if l == nil {
		l = slog.Default()
	}
	return &App{
		Container: container,
		l:         l,
		loaders:   loaders,
		chains:    make(map[string]*Chain),
	}
}

// LoadDir loads every file in dir matched by a loader's extensions.
func (a *App) LoadDir(dir string) error {
	for _, loader := range a.loaders {
		for _, pattern := range loader.Extensions() {
			files, err := filepath.Glob(filepath.Join(dir, pattern))
			if err != nil {
				return fmt.Errorf("error reading directory: %w", err)
			}
			for _, file := range files {
				chain, err := loader.Load(file)
				if err != nil {
					return err
				}
				if err := a.RegisterChain(chain); err != nil {
					return fmt.Errorf("%s: %w", file, err)
				}
				a.l.Info(fmt.Sprintf("Loaded chain: %s", chain.ID), "file", file)
			}
		}
	}
	return nil
}

// LoadFile loads a single definition with the first loader that claims it.
func (a *App) LoadFile(file string) (*Chain, error) {
	for _, loader := range a.loaders {
		for _, pattern := range loader.Extensions() {
			if ok, _ := filepath.Match(pattern, filepath.Base(file)); !ok {
				continue
			}
			chain, err := loader.Load(file)
			if err != nil {
				return nil, err
			}
			return chain, a.RegisterChain(chain)
		}
	}
	return nil, fmt.Errorf("no loader for %s", file)
}

func (a *App) RegisterChain(chain *Chain) error {
	if err := chain.Validate(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.chains[chain.ID]; exists {
		return fmt.Errorf("duplicate chain id: %s", chain.ID)
	}
	a.chains[chain.ID] = chain
	return nil
}

func (a *App) Chain(id string) (*Chain, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	chain, ok := a.chains[id]
	return chain, ok
}

// Chains returns registered chains sorted by id.
func (a *App) Chains() []*Chain {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*Chain, 0, len(a.chains))
	for _, chain := range a.chains {
		out = append(out, chain)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
