// Package connection carries the handshake fields a provisioner publishes
// for a running backend and a client consumes to attach to it. The carrier
// is schemaless key/value data: producers set whatever fields their backend
// needs, clients validate the subset they require and ignore the rest.
package connection

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Well-known field names. Producers and clients agree on these by
// convention; nothing prevents a provisioner from publishing extra fields.
const (
	FieldShellPort       = "shell_port"
	FieldIOPubPort       = "iopub_port"
	FieldStdinPort       = "stdin_port"
	FieldControlPort     = "control_port"
	FieldHBPort          = "hb_port"
	FieldIP              = "ip"
	FieldTransport       = "transport"
	FieldSignatureScheme = "signature_scheme"
	FieldKey             = "key"
	FieldWSURL           = "ws_url"
	FieldToken           = "token"
	FieldKernelName      = "kernel_name"
)

// Info is a set of named connection fields with scalar or byte-string
// values. It is a value carrier, not a shared structure: producers build it
// before publishing and hand consumers a Clone. Info is not safe for
// concurrent mutation.
type Info struct {
	fields map[string]any
}

// New creates an empty Info.
func New() *Info {
	return &Info{fields: make(map[string]any)}
}

// FromMap creates an Info holding a copy of the given fields.
func FromMap(m map[string]any) *Info {
	info := New()
	for k, v := range m {
		info.Set(k, v)
	}
	return info
}

// Set stores a field value, replacing any existing value for the key.
// Byte slices are copied. Returns the Info for chaining.
func (i *Info) Set(key string, value any) *Info {
	if b, ok := value.([]byte); ok {
		value = slices.Clone(b)
	}
	i.fields[key] = value
	return i
}

// Delete removes a field. Removing an absent field is a no-op.
func (i *Info) Delete(key string) {
	delete(i.fields, key)
}

// Get returns the raw field value and whether the field is present.
func (i *Info) Get(key string) (any, bool) {
	v, ok := i.fields[key]
	return v, ok
}

// Has reports whether the field is present.
func (i *Info) Has(key string) bool {
	_, ok := i.fields[key]
	return ok
}

// Len returns the number of fields.
func (i *Info) Len() int {
	return len(i.fields)
}

// GetString returns the field as a string, or "" when absent or not a string.
func (i *Info) GetString(key string) string {
	if s, ok := i.fields[key].(string); ok {
		return s
	}
	return ""
}

// GetInt returns the field as an int. JSON decoding produces float64 for
// numbers, so numeric widths are converted. Returns 0 when absent or
// non-numeric.
func (i *Info) GetInt(key string) int {
	switch v := i.fields[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// GetBytes returns the field as a byte string. String values are converted;
// byte slices are copied. Returns nil when absent.
func (i *Info) GetBytes(key string) []byte {
	switch v := i.fields[key].(type) {
	case []byte:
		return slices.Clone(v)
	case string:
		return []byte(v)
	}
	return nil
}

// Fields returns the sorted names of all present fields.
func (i *Info) Fields() []string {
	names := make([]string, 0, len(i.fields))
	for k := range i.fields {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

// Clone returns a deep copy. Handing an Info across the producer/consumer
// boundary always goes through Clone so neither side can mutate the other's
// view.
func (i *Info) Clone() *Info {
	out := New()
	for k, v := range i.fields {
		out.Set(k, v)
	}
	return out
}

// Require checks that every named field is present. On failure it returns a
// MissingFieldError naming all missing fields and the fields actually
// present; nothing is reported field-by-field so callers see the full gap at
// once.
func (i *Info) Require(fields ...string) error {
	var missing []string
	for _, f := range fields {
		if !i.Has(f) {
			missing = append(missing, f)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingFieldError{Missing: missing, Present: i.Fields()}
}

// MarshalJSON encodes the fields as a JSON object with sorted keys.
func (i *Info) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.fields)
}

// UnmarshalJSON decodes a JSON object of scalar fields. Nested objects and
// arrays are rejected: connection fields are flat by contract.
func (i *Info) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fields := make(map[string]any, len(raw))
	for k, v := range raw {
		switch v.(type) {
		case string, float64, bool, nil:
			fields[k] = v
		default:
			return fmt.Errorf("connection field %q: unsupported value type %T", k, v)
		}
	}
	i.fields = fields
	return nil
}

// MissingFieldError reports required connection fields that were absent
// during validation. Present lists the fields that were actually supplied so
// the mismatch is diagnosable from the message alone.
type MissingFieldError struct {
	Missing []string
	Present []string
}

func (e *MissingFieldError) Error() string {
	present := "none"
	if len(e.Present) > 0 {
		present = strings.Join(e.Present, ", ")
	}
	return fmt.Sprintf("missing required connection fields: %s (present: %s)",
		strings.Join(e.Missing, ", "), present)
}
