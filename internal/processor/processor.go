package processor

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"github.com/lensworks/etlpipe/internal/config"
	"github.com/lensworks/etlpipe/internal/fileset"
)

// FileSetProcessor is the pluggable domain-specific processing contract.
// Implementations extract, validate and load the data of one file set
// within the supplied transaction, returning an error to trigger rollback.
// The framework is otherwise pipeline-agnostic.
type FileSetProcessor interface {
	ProcessFileSet(ctx context.Context, tx *sql.Tx, fs fileset.FileSet) error
}

// TxPreparer is an optional hook invoked once per file set before
// processing, e.g. to build caches inside the transaction.
type TxPreparer interface {
	PrepareTx(ctx context.Context, tx *sql.Tx) error
}

// Factory builds a processor for a pipeline configuration.
type Factory func(cfg config.Config) (FileSetProcessor, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a processor available under the given name. Call from an
// init function before the CLI executes.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("processor %q registered twice", name))
	}
	registry[name] = factory
}

// New builds the named processor for the given configuration.
func New(name string, cfg config.Config) (FileSetProcessor, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown processor %q (registered: %v)", name, Names())
	}
	return factory(cfg)
}

// Names lists the registered processor names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NoopProcessor performs no domain work. Useful for pipelines whose value
// is classification and store/quarantine routing alone, and in tests.
type NoopProcessor struct{}

func (NoopProcessor) ProcessFileSet(context.Context, *sql.Tx, fileset.FileSet) error {
	return nil
}

func init() {
	Register("noop", func(config.Config) (FileSetProcessor, error) {
		return NoopProcessor{}, nil
	})
}
