package token

import (
	"sort"
	"sync"

	"github.com/mgrau/dexquote/internal/apperror"
)

// Registry is a thread-safe catalog of known tokens. The quoting core treats
// it as authoritative and read-only; registration happens at startup.
type Registry struct {
	mu       sync.RWMutex
	byID     map[ID]*Token
	bySymbol map[string][]*Token // symbol -> tokens, possibly on several chains
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:     make(map[ID]*Token),
		bySymbol: make(map[string][]*Token),
	}
}

// Register adds a token. Panics on duplicate identity; duplicates mean a
// wiring bug, not a runtime condition.
func (r *Registry) Register(t *Token) {
	if t == nil {
		panic("token: cannot register nil token")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[t.ID()]; exists {
		panic("token: " + t.ID().String() + " already registered")
	}
	r.byID[t.ID()] = t
	r.bySymbol[t.Symbol()] = append(r.bySymbol[t.Symbol()], t)
}

// Resolve looks up a token by chain and address string (case-insensitive).
func (r *Registry) Resolve(chainID uint64, address string) (*Token, error) {
	id, err := ParseID(chainID, address)
	if err != nil {
		return nil, apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext(address), apperror.WithCause(err))
	}

	r.mu.RLock()
	t, ok := r.byID[id]
	r.mu.RUnlock()

	if !ok {
		return nil, apperror.New(apperror.CodeTokenNotFound,
			apperror.WithContext(id.String()))
	}
	return t, nil
}

// Get retrieves a token by its ID.
func (r *Registry) Get(id ID) (*Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[id]
	return t, ok
}

// GetBySymbolAndChain retrieves a token by symbol on a specific chain.
func (r *Registry) GetBySymbolAndChain(symbol string, chainID uint64) (*Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.bySymbol[symbol] {
		if t.ChainID() == chainID {
			return t, true
		}
	}
	return nil, false
}

// ListSupported returns all tokens on the given chain, sorted by symbol for
// stable iteration.
func (r *Registry) ListSupported(chainID uint64) []*Token {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*Token
	for _, t := range r.byID {
		if t.ChainID() == chainID {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Symbol() < result[j].Symbol()
	})
	return result
}

// Count returns the number of registered tokens.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
