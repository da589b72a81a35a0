// Package connector defines the adapter contract every payment processor
// integration implements. Adapters translate a normalized payment attempt to
// one processor's wire format and parse its responses back; they never decide
// whether to retry.
package connector

import (
	"net/http"

	"github.com/Priya8975/payment-switch/internal/domain"
)

// Request is a fully built outbound connector call, ready for transport.
type Request struct {
	Method      string
	URL         string
	Headers     http.Header
	ContentType string
	Body        []byte
}

// Adapter is implemented once per (flow, processor) pair. The 5xx error
// parser is separate from the standard one because several processors encode
// a different error shape for server faults than for request rejections.
type Adapter interface {
	Name() string

	GetHeaders(attempt *domain.PaymentAttempt) (http.Header, error)
	GetContentType() string
	GetURL(attempt *domain.PaymentAttempt) (string, error)
	GetRequestBody(attempt *domain.PaymentAttempt) ([]byte, error)
	BuildRequest(attempt *domain.PaymentAttempt) (*Request, error)

	HandleResponse(attempt *domain.PaymentAttempt, raw []byte) (*domain.TransactionResponse, error)
	GetErrorResponse(raw []byte) (*domain.ErrorResponse, error)
	Get5xxErrorResponse(raw []byte) (*domain.ErrorResponse, error)
}

// Registry maps connector names to their adapters.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

// Register adds or replaces an adapter.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Name()] = a
}

// Get returns the adapter for a connector name.
func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

// Names returns the registered connector names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
