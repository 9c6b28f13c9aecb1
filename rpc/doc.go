// Package rpc is the network layer of psync. Instances on the same LAN use it
// to find each other, elect a leader and exchange their replicas.
//
// The package is organized into several subpackages:
//
//   - common: Configuration structures, the logger setup and the request and
//     response bodies of every endpoint.
//
//   - transport: HTTP client and server abstractions (see transport/http).
//
//   - serializer: Body encoding (JSON or msgpack), chosen per request.
//
//   - client: The peer client used for probes, registrations, pulls and the
//     command line.
//
//   - server: Builds an instance from its configuration and serves the sync API.
package rpc
