// Package lookup resolves exposure locations into model risk keys through a
// pluggable, per-model resolver chosen by identifier at startup.
package lookup

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"oasisrun/internal/model"
)

// ResolutionError reports a resolver implementation that could not be
// loaded. It is fatal and aborts the whole run.
type ResolutionError struct {
	Package string
	Msg     string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("lookup resolver %s: %s", e.Package, e.Msg)
}

// Lookup is the single capability a model resolver must provide. The
// returned channel is a lazy, finite stream: exactly one KeyRecord per
// (location, peril, coverage) triple present in the input, closed when
// resolution completes. Resolution is total — per-location failures become
// KeyStatusFail records, never errors.
type Lookup interface {
	ProcessLocations(ctx context.Context, locs <-chan model.ExposureRecord) <-chan model.KeyRecord
}

// Factory builds a resolver from its static keys data and model identity.
type Factory func(keysDataPath string, id model.ModelIdentity) (Lookup, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a resolver implementation available under the given name.
// Implementations register themselves at init time.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// New instantiates the named resolver. An unknown name is a fatal
// ResolutionError naming the resolver.
func New(name, keysDataPath string, id model.ModelIdentity) (Lookup, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		registryMu.RLock()
		known := make([]string, 0, len(registry))
		for k := range registry {
			known = append(known, k)
		}
		registryMu.RUnlock()
		sort.Strings(known)
		return nil, &ResolutionError{Package: name, Msg: fmt.Sprintf("no such resolver (registered: %s)", strings.Join(known, ", "))}
	}
	l, err := f(keysDataPath, id)
	if err != nil {
		return nil, &ResolutionError{Package: name, Msg: err.Error()}
	}
	return l, nil
}

// CreateFromPaths loads the model identity from a version file and
// instantiates the resolver named by the lookup package path (its base name,
// extension stripped).
func CreateFromPaths(keysDataPath, versionFilePath, lookupPackagePath string) (model.ModelIdentity, Lookup, error) {
	id, err := model.LoadModelIdentity(versionFilePath)
	if err != nil {
		return model.ModelIdentity{}, nil, err
	}
	name := ResolverName(lookupPackagePath)
	l, err := New(name, keysDataPath, id)
	if err != nil {
		return model.ModelIdentity{}, nil, err
	}
	return id, l, nil
}

// ResolverName derives the registry identifier from a lookup package path.
func ResolverName(lookupPackagePath string) string {
	base := filepath.Base(lookupPackagePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
