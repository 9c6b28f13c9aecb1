// Package server wires all components of an instance together and serves the
// sync API over HTTP.
//
// NewRPCServer takes the configuration and a server transport. Serve then
// builds, in order:
//
//   - the installation id (lib/identity) and the replica store (lstore,
//     persisted to <data-dir>/replica.msgpack)
//   - the reconciler, exporter and conflict manager, all sharing that store
//   - the peer client (rpc/client) used for probes, registrations and pulls
//   - the discovery strategy: a scanner whose cycles drive the leader
//     election, or the mdns announcer/browser (no election)
//   - the syncer for pull/push and the optional auto-sync loop
//
// It then starts discovery, the periodic flush and the listener, and blocks
// until SIGINT or SIGTERM. On shutdown the listener is drained, background
// loops stop and the replica is flushed one last time.
//
// Routes:
//
//	GET  /health                       liveness probe used by the scanner
//	POST /register                     follower registration with the leader
//	GET  /api/sync/discover            discovered peers, self excluded
//	GET  /api/sync/data                snapshot (?incluir_removidos=true)
//	POST /api/sync/merge               merge a remote snapshot
//	POST /api/sync/pull                pull from (and optionally push to) a peer
//	GET  /api/sync/conflitos           records in conflict
//	POST /api/sync/conflitos/resolver  resolve one conflict
//	GET  /api/sync/status              election, discovery and sync state
//	GET  /metrics                      Prometheus exposition
//
// Responses are encoded by the Accept header (json or msgpack), request
// bodies by their Content-Type. Errors are sent as {success: false, message}.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Endpoint:  "0.0.0.0:5000",
//	  DataDir:   "data",
//	  Discovery: "scan",
//	  LogLevel:  "info",
//	}
//
//	s := server.NewRPCServer(config, http.NewHttpServerTransport())
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
package server
