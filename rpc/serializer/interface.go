package serializer

import (
	"fmt"
	"mime"
	"strings"
)

// IRPCSerializer is the interface for all body serializers of the sync API
type IRPCSerializer interface {
	// Serialize serializes a value into a byte array
	// It returns the serialized byte array and an error if any
	Serialize(v any) ([]byte, error)
	// Deserialize deserializes a byte array into the value pointed to by v
	// It returns an error if any
	Deserialize(b []byte, v any) error
	// ContentType returns the MIME type of the serialized form
	ContentType() string
	// Name returns the name used in configuration
	Name() string
}

const (
	ContentTypeJSON    = "application/json"
	ContentTypeMsgpack = "application/msgpack"
)

// New returns the serializer with the given configuration name.
func New(name string) (IRPCSerializer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "json", "":
		return NewJSONSerializer(), nil
	case "msgpack":
		return NewMsgpackSerializer(), nil
	default:
		return nil, fmt.Errorf("invalid serializer %s (expected json or msgpack)", name)
	}
}

// ForContentType picks the serializer for a Content-Type or Accept header.
// Anything that is not msgpack falls back to JSON.
func ForContentType(header string) IRPCSerializer {
	for _, part := range strings.Split(header, ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		switch mediaType {
		case ContentTypeMsgpack, "application/x-msgpack", "application/vnd.msgpack":
			return NewMsgpackSerializer()
		case ContentTypeJSON:
			return NewJSONSerializer()
		}
	}
	return NewJSONSerializer()
}
