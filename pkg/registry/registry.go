package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"limit-orderbook/pkg/engine"
	"limit-orderbook/pkg/obs"
)

var (
	ErrUnknownSymbol = errors.New("unknown symbol")
	ErrClosed        = errors.New("registry closed")
	ErrEmptySymbol   = errors.New("symbol is required")
)

type Config struct {
	// AutoCreate makes Lookup open an engine for a symbol it has not seen.
	AutoCreate bool
	Symbols    []string
}

// Registry owns one engine per instrument.
type Registry struct {
	mu      sync.RWMutex
	cfg     Config
	engines map[string]*engine.Engine
	closed  bool

	obs  *obs.Client
	opts []engine.Option
}

// New builds a registry and opens every configured symbol. opts are applied
// to each engine it creates.
func New(cfg Config, client *obs.Client, opts ...engine.Option) (*Registry, error) {
	if client == nil {
		client = &obs.Client{}
	}
	r := &Registry{
		cfg:     cfg,
		engines: make(map[string]*engine.Engine),
		obs:     client,
		opts:    append([]engine.Option{engine.WithObs(client)}, opts...),
	}
	for _, symbol := range cfg.Symbols {
		if _, err := r.Open(symbol); err != nil {
			return nil, fmt.Errorf("open %q: %w", symbol, err)
		}
	}
	return r, nil
}

func Normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Open returns the engine for symbol, creating it if needed.
func (r *Registry) Open(symbol string) (*engine.Engine, error) {
	symbol = Normalize(symbol)
	if symbol == "" {
		return nil, ErrEmptySymbol
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if e, ok := r.engines[symbol]; ok {
		return e, nil
	}

	e := engine.New(symbol, r.opts...)
	r.engines[symbol] = e
	r.obs.LogNotice(context.Background(), "registry.open symbol=%s", symbol)
	return e, nil
}

// Get returns an existing engine only.
func (r *Registry) Get(symbol string) (*engine.Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.engines[Normalize(symbol)]
	return e, ok
}

// Lookup is Get, falling back to Open when AutoCreate is set.
func (r *Registry) Lookup(symbol string) (*engine.Engine, error) {
	if e, ok := r.Get(symbol); ok {
		return e, nil
	}
	if !r.cfg.AutoCreate {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, Normalize(symbol))
	}
	return r.Open(symbol)
}

func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	symbols := make([]string, 0, len(r.engines))
	for symbol := range r.engines {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// Close closes every engine. Engines stay readable; Open fails afterwards.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	for _, e := range r.engines {
		e.Close()
	}
	r.obs.LogNotice(context.Background(), "registry.closed engines=%d", len(r.engines))
}
