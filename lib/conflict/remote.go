package conflict

import (
	"encoding/json"
	"fmt"

	"github.com/gpaciente/psync/lib/record"
)

// ParseRemote decodes the dados_remotos field of a resolution request. It
// accepts either a full record (an object with a "dados" key) or a bare
// payload object. Empty input and JSON null yield nil.
func ParseRemote(raw json.RawMessage) (*record.Record, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("dados_remotos must be an object: %w", err)
	}

	if _, isRecord := probe["dados"]; isRecord {
		var r record.Record
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("invalid dados_remotos record: %w", err)
		}
		if r.Status != "" && !r.Status.Valid() {
			return nil, fmt.Errorf("invalid dados_remotos status %q", r.Status)
		}
		return &r, nil
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return &record.Record{Payload: payload}, nil
}
