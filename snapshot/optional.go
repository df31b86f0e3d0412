package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// OptionalID is an identifier that may be absent. On the wire it is either
// null, a JSON number, or a hexadecimal string.
type OptionalID struct {
	Value uint64
	Valid bool
}

// SomeID returns a present OptionalID.
func SomeID(v uint64) OptionalID {
	return OptionalID{Value: v, Valid: true}
}

// Get returns the value and whether it is present.
func (o OptionalID) Get() (uint64, bool) {
	return o.Value, o.Valid
}

// String renders the id, or "none" when absent.
func (o OptionalID) String() string {
	if !o.Valid {
		return "none"
	}
	return strconv.FormatUint(o.Value, 10)
}

// MarshalJSON encodes a present id as a number and an absent one as null.
func (o OptionalID) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return strconv.AppendUint(nil, o.Value, 10), nil
}

// UnmarshalJSON accepts null, a non-negative number, or a hex string with an
// optional 0x prefix. An empty string is absent.
func (o *OptionalID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*o = OptionalID{}

	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
		if s == "" {
			return nil
		}
		v, err := strconv.ParseUint(s, 16, 64)
		if err != nil {
			return fmt.Errorf("optional id %q: %w", s, err)
		}
		*o = SomeID(v)
		return nil
	}

	v, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("optional id %s: %w", data, err)
	}
	*o = SomeID(v)
	return nil
}
