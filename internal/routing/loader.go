package routing

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"golang.org/x/sync/singleflight"
)

var graphName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

type cacheKey struct {
	name string
	dir  string
}

// Loader reads graph definitions from disk and caches them by (name, directory).
// Concurrent first loads of the same graph share one read.
type Loader struct {
	mu     sync.RWMutex
	graphs map[cacheKey]*Graph
	group  singleflight.Group
}

// NewLoader creates an empty graph cache.
func NewLoader() *Loader {
	return &Loader{graphs: make(map[cacheKey]*Graph)}
}

// Load returns the graph stored at <dir>/<name>.json.
func (l *Loader) Load(name, dir string) (*Graph, error) {
	if !graphName.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrGraphNotFound, name)
	}
	key := cacheKey{name: name, dir: dir}

	l.mu.RLock()
	g, ok := l.graphs[key]
	l.mu.RUnlock()
	if ok {
		return g, nil
	}

	v, err, _ := l.group.Do(dir+"\x00"+name, func() (interface{}, error) {
		data, err := os.ReadFile(filepath.Join(dir, name+".json"))
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s in %s", ErrGraphNotFound, name, dir)
		}
		if err != nil {
			return nil, fmt.Errorf("read graph %s: %w", name, err)
		}
		g, err := Parse(name, data)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.graphs[key] = g
		l.mu.Unlock()
		return g, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Graph), nil
}

// Cached reports how many graphs are resident.
func (l *Loader) Cached() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.graphs)
}
