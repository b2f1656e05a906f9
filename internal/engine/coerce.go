package engine

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// coerce converts a task value to T, first by assertion and then by weakly
// typed decoding.
func coerce[T any](v any) (T, error) {
	var out T
	if v == nil {
		return out, nil
	}
	if tv, ok := v.(T); ok {
		return tv, nil
	}
	if err := mapstructure.WeakDecode(v, &out); err != nil {
		return out, fmt.Errorf("%w: cannot convert %T to %T: %v", ErrResultType, v, out, err)
	}
	return out, nil
}
