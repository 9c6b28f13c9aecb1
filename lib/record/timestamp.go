package record

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// legacyLayout is the second-resolution layout written by older installations.
const legacyLayout = "2006-01-02 15:04:05"

// Timestamp is the envelope time of a record. The zero value means "unknown"
// and is encoded as an empty string.
type Timestamp struct {
	time.Time
}

// Now returns the current time as a Timestamp (UTC).
func Now() Timestamp {
	return Timestamp{time.Now().UTC()}
}

// At wraps t as a Timestamp (UTC).
func At(t time.Time) Timestamp {
	return Timestamp{t.UTC()}
}

// ParseTimestamp parses RFC 3339 (with or without fractional seconds) and the
// legacy "YYYY-MM-DD HH:MM:SS" layout. An empty string yields the zero value.
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}, nil
	}
	for _, layout := range []string{time.RFC3339Nano, legacyLayout, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return At(t), nil
		}
	}
	return Timestamp{}, fmt.Errorf("invalid timestamp %q", s)
}

// Compare returns -1, 0 or +1. Two zero timestamps are equal.
func (t Timestamp) Compare(o Timestamp) int {
	return t.Time.Compare(o.Time)
}

// String returns the RFC 3339 representation or "" for the zero value.
func (t Timestamp) String() string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t Timestamp) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeString(t.String())
}

func (t *Timestamp) DecodeMsgpack(dec *msgpack.Decoder) error {
	s, err := dec.DecodeString()
	if err != nil {
		return err
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
