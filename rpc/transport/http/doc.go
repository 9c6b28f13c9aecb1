// Package http implements the transport interfaces of the parent package on
// top of net/http.
//
// Key Components:
//
//   - httpClientTransport: Implements IRPCClientTransport. A single pooled
//     http.Client is shared for all peers; every request names its target
//     instance through Request.BaseURL or falls back to the configured
//     endpoint. Failed round trips are retried RetryCount times (at least one
//     attempt is always made). HTTP error statuses are returned to the caller
//     and never retried.
//
//   - httpServerTransport: Implements IRPCServerTransport. Serves the handler
//     built by rpc/server and supports graceful shutdown. With log level
//     debug every request is logged with its status code and duration.
//
// Thread Safety:
//
//	The client transport is safe for concurrent use after Connect. Connect
//	and Close must not race with Send.
package http
