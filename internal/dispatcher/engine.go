package dispatcher

import (
	"fmt"
	"sort"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dshills/docforge/internal/event"
	"github.com/dshills/docforge/internal/history"
	"github.com/dshills/docforge/internal/logging"
	"github.com/dshills/docforge/internal/operation"
	"github.com/dshills/docforge/internal/processor"
	"github.com/dshills/docforge/internal/version"
)

// Request asks the engine to run one operation.
type Request struct {
	Kind    operation.Kind
	FileIDs []string

	// Selection is a page selection expression, resolved against each
	// input's leaf. Empty selects every page. Only page scoped kinds
	// accept one.
	Selection string

	// Params may be nil for kinds whose zero parameters are valid.
	Params operation.Params
}

// Engine validates requests, runs them through a Processor, commits the
// results to the version graph and records them for undo.
type Engine struct {
	mu sync.RWMutex

	store   *version.Store
	proc    processor.Processor
	history *history.History

	config  Config
	logger  *log.Logger
	bus     *event.Bus
	metrics *Metrics

	preHooks  []PreExecuteHook
	postHooks []PostExecuteHook

	// flightMu guards inFlight, which maps a busy file to its holder.
	flightMu sync.Mutex
	inFlight map[string]string

	recMu   sync.RWMutex
	records []*history.Operation
	byID    map[string]*history.Operation
}

// New creates an engine over store. Undo history is kept in h.
func New(store *version.Store, proc processor.Processor, h *history.History, config Config) *Engine {
	if config.Source == "" {
		config.Source = DefaultConfig().Source
	}
	return &Engine{
		store:    store,
		proc:     proc,
		history:  h,
		config:   config,
		logger:   logging.Discard(),
		inFlight: make(map[string]string),
		byID:     make(map[string]*history.Operation),
	}
}

// SetLogger sets the logger.
func (e *Engine) SetLogger(l *log.Logger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if l == nil {
		l = logging.Discard()
	}
	e.logger = l
}

// SetEventBus sets the bus events are published on. Nil disables events.
func (e *Engine) SetEventBus(bus *event.Bus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bus = bus
}

// SetMetrics sets the metrics collectors. Nil disables metrics.
func (e *Engine) SetMetrics(m *Metrics) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = m
}

// Store returns the version graph.
func (e *Engine) Store() *version.Store {
	return e.store
}

// History returns the undo history.
func (e *Engine) History() *history.History {
	return e.history
}

func (e *Engine) log() *log.Logger {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.logger
}

func (e *Engine) stats() *Metrics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.metrics
}

func (e *Engine) eventBus() *event.Bus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.bus
}

// acquire marks every file busy for holder, or none of them.
func (e *Engine) acquire(fileIDs []string, holder string) error {
	e.flightMu.Lock()
	defer e.flightMu.Unlock()

	for _, id := range fileIDs {
		if other, busy := e.inFlight[id]; busy {
			e.stats().RecordConflict()
			return &ConflictError{FileID: id, Holder: other}
		}
	}
	for _, id := range fileIDs {
		e.inFlight[id] = holder
	}
	e.stats().addInFlight(len(fileIDs))
	return nil
}

func (e *Engine) release(fileIDs []string) {
	if len(fileIDs) == 0 {
		return
	}
	e.flightMu.Lock()
	defer e.flightMu.Unlock()
	for _, id := range fileIDs {
		delete(e.inFlight, id)
	}
	e.stats().addInFlight(-len(fileIDs))
}

// Busy returns the files currently held by a running operation.
func (e *Engine) Busy() []string {
	e.flightMu.Lock()
	defer e.flightMu.Unlock()
	out := make([]string, 0, len(e.inFlight))
	for id := range e.inFlight {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (e *Engine) record(op *history.Operation) {
	e.recMu.Lock()
	defer e.recMu.Unlock()

	e.records = append(e.records, op)
	e.byID[op.ID] = op
	if limit := e.config.MaxRecords; limit > 0 && len(e.records) > limit {
		excess := len(e.records) - limit
		for _, old := range e.records[:excess] {
			delete(e.byID, old.ID)
		}
		e.records = append([]*history.Operation(nil), e.records[excess:]...)
	}
}

// update runs fn on a recorded operation under the record lock, so
// readers never observe a half-updated operation.
func (e *Engine) update(op *history.Operation, fn func(*history.Operation)) {
	e.recMu.Lock()
	defer e.recMu.Unlock()
	fn(op)
}

// Operations returns copies of every recorded operation, oldest first.
func (e *Engine) Operations() []*history.Operation {
	e.recMu.RLock()
	defer e.recMu.RUnlock()
	out := make([]*history.Operation, len(e.records))
	for i, op := range e.records {
		out[i] = op.Clone()
	}
	return out
}

// Operation returns a copy of the recorded operation with the given id.
func (e *Engine) Operation(id string) (*history.Operation, error) {
	e.recMu.RLock()
	defer e.recMu.RUnlock()
	op, ok := e.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, id)
	}
	return op.Clone(), nil
}
