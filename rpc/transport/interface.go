package transport

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gpaciente/psync/rpc/common"
)

// --------------------------------------------------------------------------
// Messages
// --------------------------------------------------------------------------

// Request is a single call against the sync API of an instance
type Request struct {
	// Method is the HTTP method, GET if empty
	Method string
	// BaseURL selects the instance (e.g. http://192.168.0.7:5000)
	// If empty the endpoint of the client configuration is used
	BaseURL string
	// Path is the route, e.g. /api/sync/data
	Path  string
	Query url.Values
	// ContentType describes Body, Accept the preferred response encoding
	ContentType string
	Accept      string
	Body        []byte
}

// Response is the raw answer of an instance
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// OK reports whether the status code is 2xx
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// IRPCServerTransport is the interface for the server side of the transport layer
// It must accept a ServerConfig as a parameter
type IRPCServerTransport interface {
	// Listen serves handler on the configured endpoint
	// It blocks until Shutdown is called or the listener fails
	Listen(config common.ServerConfig, handler http.Handler) error
	// Shutdown stops accepting requests and waits for running ones
	Shutdown(ctx context.Context) error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport is the interface for the client transport
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration
	Connect(config common.ClientConfig) error
	// Send sends a request and returns the response
	// A non-2xx status code is not an error, only a failed round trip is
	Send(ctx context.Context, req *Request) (*Response, error)
	// Close closes idle connections
	Close() error
}
