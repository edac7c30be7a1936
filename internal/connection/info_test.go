package connection

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

// === Unit Tests: Fields and Getters ===

func TestInfo_SetAndGet(t *testing.T) {
	info := New().
		Set(FieldIP, "127.0.0.1").
		Set(FieldShellPort, 54321).
		Set(FieldKey, []byte("secret"))

	v, ok := info.Get(FieldIP)
	require.True(t, ok)
	require.Equal(t, "127.0.0.1", v)

	require.Equal(t, "127.0.0.1", info.GetString(FieldIP))
	require.Equal(t, 54321, info.GetInt(FieldShellPort))
	require.Equal(t, []byte("secret"), info.GetBytes(FieldKey))
	require.Equal(t, 3, info.Len())
}

func TestInfo_GettersReturnZeroForAbsentFields(t *testing.T) {
	info := New()

	_, ok := info.Get(FieldIP)
	require.False(t, ok)
	require.Equal(t, "", info.GetString(FieldIP))
	require.Equal(t, 0, info.GetInt(FieldShellPort))
	require.Nil(t, info.GetBytes(FieldKey))
}

func TestInfo_GetInt_AcceptsNumericWidths(t *testing.T) {
	info := New().
		Set("a", 1).
		Set("b", int64(2)).
		Set("c", float64(3))

	require.Equal(t, 1, info.GetInt("a"))
	require.Equal(t, 2, info.GetInt("b"))
	require.Equal(t, 3, info.GetInt("c"))
}

func TestInfo_GetBytes_ConvertsStrings(t *testing.T) {
	info := New().Set(FieldKey, "abc-123")
	require.Equal(t, []byte("abc-123"), info.GetBytes(FieldKey))
}

func TestInfo_SetOverwrites(t *testing.T) {
	info := New().Set(FieldIP, "127.0.0.1").Set(FieldIP, "0.0.0.0")
	require.Equal(t, "0.0.0.0", info.GetString(FieldIP))
	require.Equal(t, 1, info.Len())
}

func TestInfo_Delete(t *testing.T) {
	info := New().Set(FieldToken, "t")
	info.Delete(FieldToken)
	require.False(t, info.Has(FieldToken))

	// Deleting an absent field is a no-op.
	info.Delete(FieldToken)
}

func TestInfo_Fields_Sorted(t *testing.T) {
	info := New().Set("c", 1).Set("a", 2).Set("b", 3)
	require.Equal(t, []string{"a", "b", "c"}, info.Fields())
}

// === Unit Tests: Clone ===

func TestInfo_Clone_IsIndependent(t *testing.T) {
	orig := New().
		Set(FieldIP, "127.0.0.1").
		Set(FieldKey, []byte("secret"))

	clone := orig.Clone()
	clone.Set(FieldIP, "10.0.0.1")
	clone.GetBytes(FieldKey)[0] = 'X'

	require.Equal(t, "127.0.0.1", orig.GetString(FieldIP))
	require.Equal(t, []byte("secret"), orig.GetBytes(FieldKey))
}

func TestInfo_SetCopiesByteSlices(t *testing.T) {
	key := []byte("secret")
	info := New().Set(FieldKey, key)

	key[0] = 'X'
	require.Equal(t, []byte("secret"), info.GetBytes(FieldKey))
}

// === Unit Tests: Require ===

func TestInfo_Require_AllPresent(t *testing.T) {
	info := New().
		Set(FieldIP, "127.0.0.1").
		Set(FieldTransport, "tcp")

	require.NoError(t, info.Require(FieldIP, FieldTransport))
}

func TestInfo_Require_NamesMissingAndPresentFields(t *testing.T) {
	info := New().
		Set(FieldIP, "127.0.0.1").
		Set(FieldTransport, "tcp")

	err := info.Require(FieldIP, FieldShellPort, FieldHBPort)
	require.Error(t, err)

	var missing *MissingFieldError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, []string{FieldShellPort, FieldHBPort}, missing.Missing)
	require.Equal(t, []string{FieldIP, FieldTransport}, missing.Present)

	require.Contains(t, err.Error(), "shell_port")
	require.Contains(t, err.Error(), "hb_port")
	require.Contains(t, err.Error(), "present: ip, transport")
}

func TestInfo_Require_EmptyInfo(t *testing.T) {
	err := New().Require(FieldWSURL)

	var missing *MissingFieldError
	require.ErrorAs(t, err, &missing)
	require.Empty(t, missing.Present)
	require.Contains(t, err.Error(), "present: none")
}

// === Unit Tests: JSON ===

func TestInfo_JSONRoundTrip(t *testing.T) {
	orig := New().
		Set(FieldIP, "127.0.0.1").
		Set(FieldTransport, "tcp").
		Set(FieldShellPort, 54321).
		Set(FieldKey, "b0b6a22b-8e1e-4f3a-9a1e-000000000000")

	data, err := json.Marshal(orig)
	require.NoError(t, err)

	decoded := New()
	require.NoError(t, json.Unmarshal(data, decoded))

	require.Equal(t, "127.0.0.1", decoded.GetString(FieldIP))
	require.Equal(t, "tcp", decoded.GetString(FieldTransport))
	// JSON numbers decode as float64; the typed getter converts.
	require.Equal(t, 54321, decoded.GetInt(FieldShellPort))
	require.Equal(t, orig.Fields(), decoded.Fields())
}

func TestInfo_UnmarshalRejectsNestedValues(t *testing.T) {
	decoded := New()
	err := json.Unmarshal([]byte(`{"ports": {"shell": 1}}`), decoded)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported value type")

	err = json.Unmarshal([]byte(`{"ports": [1, 2]}`), decoded)
	require.Error(t, err)
}
