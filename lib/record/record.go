package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Kinds and Status
// --------------------------------------------------------------------------

// Kind identifies one of the replicated collections.
type Kind string

const (
	KindPatient     Kind = "paciente"
	KindAppointment Kind = "agendamento"
)

// Kinds lists all collections in the order they are merged.
var Kinds = []Kind{KindPatient, KindAppointment}

// Collection returns the plural collection name used on the wire.
func (k Kind) Collection() string {
	return string(k) + "s"
}

// ParseKind accepts the singular or plural collection name.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "paciente", "pacientes":
		return KindPatient, nil
	case "agendamento", "agendamentos":
		return KindAppointment, nil
	default:
		return "", fmt.Errorf("unknown record kind %q (expected paciente or agendamento)", s)
	}
}

// Status is the lifecycle state of a record.
type Status string

const (
	StatusActive   Status = "ativo"
	StatusRemoved  Status = "removido"
	StatusConflict Status = "conflito"
)

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusRemoved, StatusConflict:
		return true
	}
	return false
}

// --------------------------------------------------------------------------
// Record
// --------------------------------------------------------------------------

// Conflict is attached to a record while its status is StatusConflict.
type Conflict struct {
	// PriorStatus is the status the record had before it was flagged
	PriorStatus Status `json:"status_anterior"`
	// Remote is the remote candidate that could not be reconciled
	Remote *Record `json:"remoto,omitempty"`
	// DetectedAt is when the reconciler raised the conflict
	DetectedAt Timestamp `json:"detectado_em"`
}

// Record is a single replicated row (patient or appointment).
type Record struct {
	ID           string         `json:"id"`
	Payload      map[string]any `json:"dados"`
	Status       Status         `json:"status"`
	Origin       string         `json:"pc_id"`
	Version      uint64         `json:"versao"`
	LastModified Timestamp      `json:"ultima_modificacao"`
	RemovedAt    Timestamp      `json:"removido_em"`
	RemovedBy    string         `json:"removido_por,omitempty"`
	Conflict     *Conflict      `json:"conflito,omitempty"`
}

// New creates an active record written by origin at version 1.
func New(id string, payload map[string]any, origin string) *Record {
	return &Record{
		ID:           id,
		Payload:      payload,
		Status:       StatusActive,
		Origin:       origin,
		Version:      1,
		LastModified: Now(),
	}
}

// IsRemoved reports whether the record is a tombstone.
func (r *Record) IsRemoved() bool {
	return r.Status == StatusRemoved
}

// InConflict reports whether the record waits for a human resolution.
func (r *Record) InConflict() bool {
	return r.Status == StatusConflict
}

// Normalize fills defaults for fields that older peers may omit.
func (r *Record) Normalize() {
	if r.Status == "" {
		r.Status = StatusActive
	}
	if r.Version == 0 {
		r.Version = 1
	}
}

// Validate checks the structural invariants of a record received from outside.
func (r *Record) Validate() error {
	if r == nil {
		return fmt.Errorf("record is null")
	}
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("record without id")
	}
	if r.Status != "" && !r.Status.Valid() {
		return fmt.Errorf("record %s: invalid status %q", r.ID, r.Status)
	}
	return nil
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Payload = clonePayload(r.Payload)
	if r.Conflict != nil {
		conflict := *r.Conflict
		conflict.Remote = r.Conflict.Remote.Clone()
		c.Conflict = &conflict
	}
	return &c
}

// --------------------------------------------------------------------------
// Local mutations (the only places where envelope fields change)
// --------------------------------------------------------------------------

// Touch records a local mutation: the version is bumped, the timestamp is set
// to now and origin becomes the writing installation.
func (r *Record) Touch(origin string, now Timestamp) {
	r.Version++
	r.LastModified = now
	r.Origin = origin
}

// Tombstone soft-deletes the record.
func (r *Record) Tombstone(origin, by string, now Timestamp) {
	r.Status = StatusRemoved
	r.RemovedAt = now
	r.RemovedBy = by
	r.Touch(origin, now)
}

// MarkConflict flags the record as conflicting with remote. The previous
// status is kept so a keep-local resolution can restore it. Origin is left
// untouched: the payload is still the one written by its last owner.
func (r *Record) MarkConflict(remote *Record, now Timestamp) {
	prior := r.Status
	if r.Conflict != nil {
		prior = r.Conflict.PriorStatus
	}
	candidate := remote.Clone()
	if candidate != nil {
		candidate.Conflict = nil
	}
	r.Conflict = &Conflict{
		PriorStatus: prior,
		Remote:      candidate,
		DetectedAt:  now,
	}
	r.Status = StatusConflict
	r.Version++
	r.LastModified = now
}

// --------------------------------------------------------------------------
// Comparison
// --------------------------------------------------------------------------

// SameContent reports whether a and b are field-for-field identical, ignoring
// the sync-only envelope fields (version, last modified, origin) and the
// local conflict bookkeeping.
func SameContent(a, b *Record) bool {
	if a.ID != b.ID || a.Status != b.Status || a.RemovedBy != b.RemovedBy {
		return false
	}
	if a.RemovedAt.Compare(b.RemovedAt) != 0 {
		return false
	}
	return SamePayload(a.Payload, b.Payload)
}

// SamePayload compares two payloads on their canonical JSON form.
func SamePayload(a, b map[string]any) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	ca, errA := canonical(a)
	cb, errB := canonical(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ca, cb)
}

// canonical encodes a payload with sorted keys and normalized numbers.
func canonical(p map[string]any) ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// clonePayload deep copies maps and slices of a decoded payload.
func clonePayload(p map[string]any) map[string]any {
	if p == nil {
		return nil
	}
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return clonePayload(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}
