package types

import (
	"encoding/json"
	"strings"
)

// FlexList is a slice that can be unmarshaled from either a single JSON value or a JSON array.
// The tree widget reports a lone checked node as a scalar and several as an array.
type FlexList[T any] []T

// UnmarshalJSON implements the json.Unmarshaler interface.
func (f *FlexList[T]) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*f = nil
		return nil
	}

	if data[0] == '[' {
		var slice []T
		if err := json.Unmarshal(data, &slice); err != nil {
			return err
		}
		*f = FlexList[T](slice)
		return nil
	}

	var item T
	if err := json.Unmarshal(data, &item); err != nil {
		return err
	}
	*f = FlexList[T]{item}
	return nil
}

// Slice converts FlexList[T] back to []T.
func (f FlexList[T]) Slice() []T {
	return []T(f)
}

// IDs flattens a list of FlexID values.
func IDs(list FlexList[FlexID]) []uint {
	out := make([]uint, 0, len(list))
	for _, id := range list {
		out = append(out, id.Uint())
	}
	return out
}

// SplitList splits comma separated query values, dropping blanks.
func SplitList(values ...string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
