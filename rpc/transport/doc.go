// Package transport defines the interfaces used to move sync API calls
// between instances. It keeps the HTTP plumbing (listeners, connection
// pools, retries) out of the client and server packages.
//
// Key Components:
//
//   - IRPCClientTransport: Client side. Sends a Request to any instance,
//     either the configured endpoint or the BaseURL of a discovered peer.
//
//   - IRPCServerTransport: Server side. Serves an http.Handler on the
//     configured endpoint and supports graceful shutdown.
//
//   - Request / Response: Transport level messages. Bodies are already
//     serialized (see rpc/serializer).
package transport
