package serializer

import (
	"testing"
	"time"

	"github.com/gpaciente/psync/lib/record"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":    NewJSONSerializer,
	"Msgpack": NewMsgpackSerializer,
}

// snapshot mirrors the body of /api/sync/data
type snapshot struct {
	Success      bool             `json:"success"`
	PCID         string           `json:"pc_id"`
	Patients     []*record.Record `json:"pacientes"`
	Appointments []*record.Record `json:"agendamentos"`
}

func testSnapshot() snapshot {
	ts := record.At(time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC))
	removed := &record.Record{
		ID:           "p2",
		Payload:      map[string]any{"nome": "Bia"},
		Status:       record.StatusRemoved,
		Origin:       "pc-a",
		Version:      3,
		LastModified: ts,
		RemovedAt:    ts,
		RemovedBy:    "maria",
	}
	return snapshot{
		Success: true,
		PCID:    "pc-a",
		Patients: []*record.Record{
			{
				ID:           "p1",
				Payload:      map[string]any{"nome": "Ana", "idade": 31, "tags": []any{"gestante"}},
				Status:       record.StatusActive,
				Origin:       "pc-a",
				Version:      7,
				LastModified: ts,
			},
			removed,
		},
		Appointments: []*record.Record{},
	}
}

// TestSerializerRoundTrip tests that snapshots survive serialization with
// every implementation
func TestSerializerRoundTrip(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()
			orig := testSnapshot()

			data, err := serializer.Serialize(orig)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			var result snapshot
			if err := serializer.Deserialize(data, &result); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			if result.PCID != orig.PCID || len(result.Patients) != 2 {
				t.Fatalf("unexpected result %+v", result)
			}
			for i, p := range orig.Patients {
				got := result.Patients[i]
				if !record.SameContent(p, got) || got.Version != p.Version || got.Origin != p.Origin {
					t.Errorf("patient %s changed: %+v", p.ID, got)
				}
				if got.LastModified.Compare(p.LastModified) != 0 {
					t.Errorf("patient %s timestamp changed: %s", p.ID, got.LastModified)
				}
			}
		})
	}
}

func TestMsgpackUsesJSONNames(t *testing.T) {
	data, err := NewMsgpackSerializer().Serialize(map[string]any{"x": testSnapshot().Patients[0]})
	if err != nil {
		t.Fatal(err)
	}

	var generic map[string]map[string]any
	if err := NewMsgpackSerializer().Deserialize(data, &generic); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"id", "dados", "status", "pc_id", "versao", "ultima_modificacao"} {
		if _, ok := generic["x"][key]; !ok {
			t.Errorf("field %q missing in msgpack form: %v", key, generic["x"])
		}
	}
}

func TestNewAndForContentType(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", "json"},
		{"application/json", "json"},
		{"application/msgpack", "msgpack"},
		{"application/x-msgpack; charset=binary", "msgpack"},
		{"text/html, application/msgpack;q=0.9", "msgpack"},
		{"*/*", "json"},
	}
	for _, tt := range tests {
		if got := ForContentType(tt.header).Name(); got != tt.want {
			t.Errorf("ForContentType(%q) = %s, want %s", tt.header, got, tt.want)
		}
	}

	if s, err := New("MSGPACK"); err != nil || s.ContentType() != ContentTypeMsgpack {
		t.Errorf("New(msgpack) = %v, %v", s, err)
	}
	if _, err := New("gob"); err == nil {
		t.Error("expected error for unknown serializer")
	}
}
