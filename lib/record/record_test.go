package record

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		input   string
		want    Kind
		wantErr bool
	}{
		{input: "paciente", want: KindPatient},
		{input: "pacientes", want: KindPatient},
		{input: " Agendamento ", want: KindAppointment},
		{input: "agendamentos", want: KindAppointment},
		{input: "consulta", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseKind(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseKind(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseKind(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}

	if KindPatient.Collection() != "pacientes" || KindAppointment.Collection() != "agendamentos" {
		t.Errorf("unexpected collection names: %s, %s", KindPatient.Collection(), KindAppointment.Collection())
	}
}

func TestParseTimestamp(t *testing.T) {
	legacy, err := ParseTimestamp("2024-03-01 10:20:30")
	if err != nil {
		t.Fatalf("legacy layout: %v", err)
	}
	rfc, err := ParseTimestamp("2024-03-01T10:20:30Z")
	if err != nil {
		t.Fatalf("rfc3339 layout: %v", err)
	}
	if legacy.Compare(rfc) != 0 {
		t.Errorf("expected legacy and rfc3339 timestamps to be equal, got %s and %s", legacy, rfc)
	}

	empty, err := ParseTimestamp("  ")
	if err != nil || !empty.IsZero() {
		t.Errorf("expected zero timestamp for blank input, got %v (err %v)", empty, err)
	}

	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Error("expected error for invalid timestamp")
	}
}

func TestTimestampEncoding(t *testing.T) {
	ts := At(time.Date(2024, 5, 6, 7, 8, 9, 123, time.UTC))

	raw, err := json.Marshal(ts)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Timestamp
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Compare(ts) != 0 {
		t.Errorf("json round trip changed timestamp: %s -> %s", ts, back)
	}

	var zero Timestamp
	raw, _ = json.Marshal(zero)
	if string(raw) != `""` {
		t.Errorf("zero timestamp should encode as empty string, got %s", raw)
	}
	if err := json.Unmarshal([]byte("null"), &back); err != nil || !back.IsZero() {
		t.Errorf("null should decode to zero timestamp, got %v (err %v)", back, err)
	}

	packed, err := msgpack.Marshal(&Record{ID: "x", LastModified: ts})
	if err != nil {
		t.Fatalf("msgpack marshal: %v", err)
	}
	var rec Record
	if err := msgpack.Unmarshal(packed, &rec); err != nil {
		t.Fatalf("msgpack unmarshal: %v", err)
	}
	if rec.LastModified.Compare(ts) != 0 {
		t.Errorf("msgpack round trip changed timestamp: %s -> %s", ts, rec.LastModified)
	}
}

func TestSameContent(t *testing.T) {
	base := &Record{
		ID:           "p1",
		Payload:      map[string]any{"nome": "Ana", "idade": float64(30)},
		Status:       StatusActive,
		Origin:       "pc-a",
		Version:      3,
		LastModified: At(time.Unix(100, 0)),
	}

	envelopeOnly := base.Clone()
	envelopeOnly.Origin = "pc-b"
	envelopeOnly.Version = 9
	envelopeOnly.LastModified = At(time.Unix(200, 0))
	if !SameContent(base, envelopeOnly) {
		t.Error("records differing only in envelope fields should be identical")
	}

	intTyped := base.Clone()
	intTyped.Payload["idade"] = int8(30)
	if !SameContent(base, intTyped) {
		t.Error("numeric payload values should compare on their canonical form")
	}

	changed := base.Clone()
	changed.Payload["nome"] = "Beatriz"
	if SameContent(base, changed) {
		t.Error("different payloads should not be identical")
	}

	removed := base.Clone()
	removed.Status = StatusRemoved
	if SameContent(base, removed) {
		t.Error("different status should not be identical")
	}

	if !SamePayload(nil, map[string]any{}) {
		t.Error("nil and empty payloads should be identical")
	}
}

func TestClone(t *testing.T) {
	orig := &Record{
		ID:      "p1",
		Payload: map[string]any{"tags": []any{"a", map[string]any{"k": "v"}}},
	}
	orig.MarkConflict(&Record{ID: "p1", Payload: map[string]any{"x": "y"}}, Now())

	c := orig.Clone()
	c.Payload["tags"].([]any)[1].(map[string]any)["k"] = "changed"
	c.Conflict.Remote.Payload["x"] = "changed"

	if orig.Payload["tags"].([]any)[1].(map[string]any)["k"] != "v" {
		t.Error("clone shares nested payload with the original")
	}
	if orig.Conflict.Remote.Payload["x"] != "y" {
		t.Error("clone shares the conflict candidate with the original")
	}
}

func TestMutationsBumpVersion(t *testing.T) {
	r := New("p1", map[string]any{"nome": "Ana"}, "pc-a")
	if r.Version != 1 || r.Status != StatusActive {
		t.Fatalf("unexpected new record: %+v", r)
	}

	r.Touch("pc-b", Now())
	if r.Version != 2 || r.Origin != "pc-b" {
		t.Errorf("Touch: version=%d origin=%s", r.Version, r.Origin)
	}

	now := Now()
	r.Tombstone("pc-b", "maria", now)
	if r.Version != 3 || !r.IsRemoved() || r.RemovedAt.IsZero() || r.RemovedBy != "maria" {
		t.Errorf("Tombstone: unexpected record %+v", r)
	}

	r.MarkConflict(&Record{ID: "p1", Status: StatusActive}, Now())
	if r.Version != 4 || !r.InConflict() || r.Conflict.PriorStatus != StatusRemoved {
		t.Errorf("MarkConflict: unexpected record %+v", r)
	}

	// a second conflict keeps the first prior status
	r.MarkConflict(&Record{ID: "p1"}, Now())
	if r.Version != 5 || r.Conflict.PriorStatus != StatusRemoved {
		t.Errorf("MarkConflict twice: version=%d prior=%s", r.Version, r.Conflict.PriorStatus)
	}
}

func TestValidateAndNormalize(t *testing.T) {
	var nilRecord *Record
	if err := nilRecord.Validate(); err == nil {
		t.Error("expected error for nil record")
	}
	if err := (&Record{}).Validate(); err == nil {
		t.Error("expected error for record without id")
	}
	if err := (&Record{ID: "a", Status: "apagado"}).Validate(); err == nil {
		t.Error("expected error for unknown status")
	}

	r := &Record{ID: "a"}
	if err := r.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	r.Normalize()
	if r.Status != StatusActive || r.Version != 1 {
		t.Errorf("Normalize: status=%s version=%d", r.Status, r.Version)
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(r); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"status":"ativo"`)) {
		t.Errorf("unexpected wire form: %s", buf.String())
	}
}
