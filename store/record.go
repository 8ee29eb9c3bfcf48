package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// TimeFormat is the layout of every timestamp written to the document:
// UTC with millisecond precision, e.g. 2024-05-01T12:00:00.000Z.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Field names of the fixed part of a record.
const (
	FieldID              = "id"
	FieldFirst           = "first"
	FieldLast            = "last"
	FieldIsDeleted       = "is_deleted"
	FieldIsPatched       = "is_patched"
	FieldGetCount        = "get_count"
	FieldLastGetDate     = "last_get_date"
	FieldLastPatchDate   = "last_patch_date"
	FieldLastDeletedDate = "last_deleted_date"
)

var fixedFields = map[string]bool{
	FieldID:              true,
	FieldFirst:           true,
	FieldLast:            true,
	FieldIsDeleted:       true,
	FieldIsPatched:       true,
	FieldGetCount:        true,
	FieldLastGetDate:     true,
	FieldLastPatchDate:   true,
	FieldLastDeletedDate: true,
}

// Record is a single entry in a collection. The fixed fields carry identity
// and lifecycle metadata; Extra holds any other fields merged in by an amend.
type Record struct {
	ID              int
	First           string
	Last            string
	IsDeleted       bool
	IsPatched       bool
	GetCount        int
	LastGetDate     *time.Time
	LastPatchDate   *time.Time
	LastDeletedDate *time.Time

	Extra map[string]any
}

// recordJSON is the wire shape of the fixed fields, in document order.
type recordJSON struct {
	ID              int     `json:"id"`
	First           string  `json:"first"`
	Last            string  `json:"last"`
	IsDeleted       bool    `json:"is_deleted"`
	IsPatched       bool    `json:"is_patched"`
	GetCount        int     `json:"get_count"`
	LastGetDate     *string `json:"last_get_date"`
	LastPatchDate   *string `json:"last_patch_date"`
	LastDeletedDate *string `json:"last_deleted_date"`
}

// recordInJSON accepts names written by older servers, which only checked
// that first and last were present.
type recordInJSON struct {
	recordJSON
	First json.RawMessage `json:"first"`
	Last  json.RawMessage `json:"last"`
}

// parseName reads a name as a string. Numbers and booleans keep their JSON
// text; null or a missing name is empty.
func parseName(field string, raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("%s: %w", field, err)
	}
	switch n := v.(type) {
	case nil:
		return "", nil
	case string:
		return n, nil
	case json.Number:
		return n.String(), nil
	case bool:
		return strconv.FormatBool(n), nil
	}
	return "", fmt.Errorf("%s: expected a string, got %s", field, string(raw))
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(TimeFormat)
	return &s
}

func parseTime(field string, s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, *s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	t = t.UTC()
	return &t, nil
}

// MarshalJSON writes the fixed fields first, then Extra in sorted key order.
func (r *Record) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(recordJSON{
		ID:              r.ID,
		First:           r.First,
		Last:            r.Last,
		IsDeleted:       r.IsDeleted,
		IsPatched:       r.IsPatched,
		GetCount:        r.GetCount,
		LastGetDate:     formatTime(r.LastGetDate),
		LastPatchDate:   formatTime(r.LastPatchDate),
		LastDeletedDate: formatTime(r.LastDeletedDate),
	})
	if err != nil || len(r.Extra) == 0 {
		return b, err
	}

	keys := make([]string, 0, len(r.Extra))
	for k := range r.Extra {
		if !fixedFields[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.Write(b[:len(b)-1])
	for _, k := range keys {
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.Extra[k])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		buf.WriteByte(',')
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON parses a record object. Unknown keys land in Extra with
// numbers kept as json.Number so they survive a rewrite unchanged.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return errors.New("record is null")
	}

	var fixed recordInJSON
	if err := json.Unmarshal(data, &fixed); err != nil {
		return err
	}
	if fixed.ID <= 0 {
		return fmt.Errorf("record id must be a positive integer, got %s", string(raw[FieldID]))
	}
	if fixed.GetCount < 0 {
		return fmt.Errorf("record %d: negative get_count", fixed.ID)
	}

	out := Record{
		ID:        fixed.ID,
		IsDeleted: fixed.IsDeleted,
		IsPatched: fixed.IsPatched,
		GetCount:  fixed.GetCount,
	}
	var err error
	if out.First, err = parseName(FieldFirst, fixed.First); err != nil {
		return err
	}
	if out.Last, err = parseName(FieldLast, fixed.Last); err != nil {
		return err
	}
	if out.LastGetDate, err = parseTime(FieldLastGetDate, fixed.LastGetDate); err != nil {
		return err
	}
	if out.LastPatchDate, err = parseTime(FieldLastPatchDate, fixed.LastPatchDate); err != nil {
		return err
	}
	if out.LastDeletedDate, err = parseTime(FieldLastDeletedDate, fixed.LastDeletedDate); err != nil {
		return err
	}

	for k, v := range raw {
		if fixedFields[k] {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(v))
		dec.UseNumber()
		var val any
		if err := dec.Decode(&val); err != nil {
			return fmt.Errorf("field %s: %w", k, err)
		}
		if out.Extra == nil {
			out.Extra = make(map[string]any)
		}
		out.Extra[k] = val
	}

	*r = out
	return nil
}

// Merge copies fields into the record. first and last replace the fixed
// values when they are strings; other fixed fields are skipped, the rest
// land in Extra.
func (r *Record) Merge(fields map[string]any) {
	for k, v := range fields {
		switch k {
		case FieldFirst:
			if s, ok := v.(string); ok {
				r.First = s
			}
		case FieldLast:
			if s, ok := v.(string); ok {
				r.Last = s
			}
		default:
			if fixedFields[k] {
				continue
			}
			if r.Extra == nil {
				r.Extra = make(map[string]any)
			}
			r.Extra[k] = copyValue(v)
		}
	}
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.LastGetDate = copyTime(r.LastGetDate)
	c.LastPatchDate = copyTime(r.LastPatchDate)
	c.LastDeletedDate = copyTime(r.LastDeletedDate)
	if r.Extra != nil {
		c.Extra = make(map[string]any, len(r.Extra))
		for k, v := range r.Extra {
			c.Extra[k] = copyValue(v)
		}
	}
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// copyValue deep-copies decoded JSON values.
func copyValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, e := range x {
			m[k] = copyValue(e)
		}
		return m
	case []any:
		s := make([]any, len(x))
		for i, e := range x {
			s[i] = copyValue(e)
		}
		return s
	default:
		return v
	}
}
