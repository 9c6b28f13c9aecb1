// Package common provides the data structures shared by the client and the
// server side of the sync API.
//
// The package focuses on:
//   - Wire messages of the HTTP/JSON endpoints
//   - Configuration structures for client and server components
//   - Custom logging implementation integrated with the Dragonboat logger facade
//
// Key Components:
//
//   - Wire messages: request and response bodies of /health, /register and
//     the /api/sync/* endpoints. Field names follow the JSON names used by
//     existing installations (pacientes, agendamentos, pc_id, ...), so a peer
//     running this implementation can talk to any other instance.
//
//   - ServerConfig: configuration of an instance, including listen endpoint,
//     discovery mode and scan parameters, storage and scheduling settings.
//
//   - ClientConfig: configuration of the peer client (endpoint, timeout,
//     retries and serializer).
//
//   - Logger: custom logging implementation on top of
//     github.com/lni/dragonboat/v4/logger, providing a consistent
//     "LEVEL | package | message" format across all packages.
package common
