package types

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// FlexID is a row id that can be unmarshaled from a JSON number or a numeric string.
type FlexID uint

// UnmarshalJSON implements the json.Unmarshaler interface.
func (f *FlexID) UnmarshalJSON(data []byte) error {
	var n uint64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexID(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		val, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return fmt.Errorf("FlexID: invalid id string %q: %w", s, err)
		}
		*f = FlexID(val)
		return nil
	}

	return fmt.Errorf("FlexID: unexpected type, expected number or string")
}

// MarshalJSON implements the json.Marshaler interface.
func (f FlexID) MarshalJSON() ([]byte, error) {
	return json.Marshal(uint(f))
}

// Uint converts FlexID back to uint.
func (f FlexID) Uint() uint {
	return uint(f)
}

// OptionalID distinguishes an absent JSON key from an explicit null.
// Set is true whenever the key was present; Valid is false for null.
type OptionalID struct {
	Set   bool
	Valid bool
	Value uint
}

// UnmarshalJSON is only invoked for keys present in the document.
func (o *OptionalID) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Valid = false
		o.Value = 0
		return nil
	}
	var id FlexID
	if err := id.UnmarshalJSON(data); err != nil {
		return err
	}
	o.Valid = true
	o.Value = id.Uint()
	return nil
}

// Ptr returns nil for null and a pointer to the id otherwise.
func (o OptionalID) Ptr() *uint {
	if !o.Valid {
		return nil
	}
	v := o.Value
	return &v
}
