// Package serializer provides body serialization for the sync API. It
// defines a common interface and two implementations that are chosen per
// request by content negotiation.
//
// Key Components:
//
//   - IRPCSerializer: Core interface that all serializer implementations must satisfy.
//
//   - jsonSerializerImpl: JSON encoding. It is the default and the only format
//     every peer understands.
//
//   - msgpackSerializerImpl: msgpack encoding (github.com/vmihailenco/msgpack/v5)
//     using the json struct tags, so field names are identical in both
//     formats. Snapshots are smaller and faster to decode, which matters for
//     /api/sync/data and /api/sync/merge on large replicas.
//
// Selection:
//
//	The server answers in msgpack when the request's Accept header asks for
//	application/msgpack and decodes msgpack bodies when Content-Type says so.
//	Use ForContentType to map a header to a serializer and New to map a
//	configuration name ("json", "msgpack").
//
// Thread Safety:
//
//	All serializer implementations are stateless and safe for concurrent use
//	across multiple goroutines without additional synchronization.
//
// Usage:
//
//	s := serializer.ForContentType(r.Header.Get("Content-Type"))
//	var req common.MergeRequest
//	if err := s.Deserialize(body, &req); err != nil {
//		// ... 400 ...
//	}
package serializer
