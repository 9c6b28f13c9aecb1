// Package client implements the HTTP client of the sync API. One PeerClient
// is shared by the whole instance and talks to any peer.
//
// The package focuses on:
//   - Probing peers during a scan (Probe implements discovery.ProbeFunc)
//   - Registering with the elected leader (Register implements election.RegisterFunc)
//   - Pulling and pushing snapshots (FetchData and Merge implement syncer.Client)
//   - The calls used by the psync sync command line
//
// Requests are encoded with the configured serializer. Answers are decoded
// by their Content-Type, so a json-only peer still works with a msgpack
// client. Non-2xx answers are returned as *APIError with the message sent by
// the instance.
//
// Usage Example:
//
//	config := common.ClientConfig{Endpoint: "localhost:5000", TimeoutSecond: 5, RetryCount: 1}
//	c, _ := client.NewPeerClient(config, http.NewHttpClientTransport(), serializer.NewJSONSerializer())
//
//	// the zero peer addresses the configured endpoint
//	status, _ := c.Status(ctx, discovery.Peer{})
//
//	// any other peer is addressed directly
//	snap, _ := c.FetchData(ctx, discovery.Peer{IP: "192.168.0.7", Port: 5000}, true)
//
// Thread Safety:
//
//	PeerClient is safe for concurrent use; the scanner calls Probe from many
//	workers at once.
package client
