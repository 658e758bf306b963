// Package strategy defines the Strategy interface for trading strategies,
// a Registry for managing implementations and the Backtester that replays
// stored bars through one of them.
package strategy

import (
	"context"
	"sort"

	"forexsim/internal/domain"
)

// Strategy is the interface that all trading strategies must implement.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Init performs any one-time setup required before the strategy begins
	// processing market data. It is called once per backtest run.
	Init(ctx context.Context) error

	// OnBar is called for every bar after the step it belongs to has been
	// matched. pos is the strategy's position in the bar's symbol. It
	// returns zero or more signals to place before the next bar.
	OnBar(ctx context.Context, bar domain.Bar, pos domain.Position) ([]domain.Signal, error)
}

// Registry holds a named collection of strategies for lookup and enumeration.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register adds a strategy to the registry, keyed by its Name().
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Get retrieves a strategy by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
