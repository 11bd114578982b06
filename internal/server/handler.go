package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"example.com/listingfs/internal/logger"
)

// Handler is the interface that processes requests for a given route.
//
// segments are the percent-decoded path segments that follow the route's
// matched prefix. ServeRoute returns false, without writing anything, when it
// declines the request so the router can try the next matching route.
type Handler interface {
	ServeRoute(w http.ResponseWriter, r *http.Request, segments []string) bool
}

// Ranker is implemented by handlers that carry their own routing priority.
// Lower ranks are tried first.
type Ranker interface {
	Rank() int
}

// DefaultRank is used for handlers that do not implement Ranker and routes without an explicit rank.
const DefaultRank = 0

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(w http.ResponseWriter, r *http.Request, segments []string) bool

func (f HandlerFunc) ServeRoute(w http.ResponseWriter, r *http.Request, segments []string) bool {
	return f(w, r, segments)
}

// HandlerFactory defines the function signature for creating handler instances.
type HandlerFactory func(handlerConfig json.RawMessage, lg *logger.Logger) (Handler, error)

// HandlerRegistry manages the registration and retrieval of HandlerFactory instances.
// It provides a centralized and thread-safe way to map HandlerType strings
// (from configuration) to their corresponding factory functions.
type HandlerRegistry struct {
	mu        sync.RWMutex
	factories map[string]HandlerFactory
}

// NewHandlerRegistry creates and returns a new HandlerRegistry instance.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		factories: make(map[string]HandlerFactory),
	}
}

// Register associates a HandlerType string with a factory function.
// It returns an error if a HandlerType is registered more than once.
func (r *HandlerRegistry) Register(handlerType string, factory HandlerFactory) error {
	if factory == nil {
		return fmt.Errorf("factory for handler type '%s' cannot be nil", handlerType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[handlerType]; exists {
		return fmt.Errorf("handler type '%s' already registered", handlerType)
	}
	r.factories[handlerType] = factory
	return nil
}

// GetFactory retrieves a registered HandlerFactory for the given handlerType.
func (r *HandlerRegistry) GetFactory(handlerType string) (HandlerFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.factories[handlerType]
	return factory, ok
}

// CreateHandler creates a new handler instance for the given HandlerType string
// using its registered factory.
func (r *HandlerRegistry) CreateHandler(handlerType string, handlerConfig json.RawMessage, lg *logger.Logger) (Handler, error) {
	factory, ok := r.GetFactory(handlerType)
	if !ok {
		return nil, fmt.Errorf("no handler factory registered for type '%s'", handlerType)
	}
	if lg == nil {
		return nil, fmt.Errorf("logger cannot be nil when creating handler type '%s'", handlerType)
	}
	return factory(handlerConfig, lg)
}
