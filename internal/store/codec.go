package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const timestampLayout = "2006-01-02T15:04:05"

// Timestamp is a local wall-clock time serialized without a zone offset,
// e.g. 2024-03-01T09:30:12.048113. The fraction is omitted when zero.
type Timestamp struct {
	t time.Time
}

// NewTimestamp converts t to local time at microsecond precision.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t: t.Local().Truncate(time.Microsecond)}
}

// ParseTimestamp accepts the zone-less local form and RFC 3339 with an offset.
// An empty string is the zero Timestamp.
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}, nil
	}
	if t, err := time.ParseInLocation(timestampLayout, s, time.Local); err == nil {
		return Timestamp{t: t}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Timestamp{}, fmt.Errorf("%w: timestamp %q", ErrInvalid, s)
	}
	return Timestamp{t: t.Local()}, nil
}

func (ts Timestamp) Time() time.Time { return ts.t }

func (ts Timestamp) Equal(o Timestamp) bool { return ts.t.Equal(o.t) }

func (ts Timestamp) String() string {
	if ts.t.IsZero() {
		return ""
	}
	s := ts.t.Format(timestampLayout)
	ns := ts.t.Nanosecond()
	switch {
	case ns == 0:
	case ns%1000 == 0:
		s += fmt.Sprintf(".%06d", ns/1000)
	default:
		s += fmt.Sprintf(".%09d", ns)
	}
	return s
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(ts.String())
}

func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: created_at must be a string", ErrInvalid)
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*ts = parsed
	return nil
}

func decodeTasks(b []byte) ([]Task, error) {
	var tasks []Task
	if err := json.Unmarshal(b, &tasks); err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []Task{}
	}
	return tasks, nil
}

func encodeTasks(tasks []Task) ([]byte, error) {
	if tasks == nil {
		tasks = []Task{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(tasks); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
