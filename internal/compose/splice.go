package compose

import "fmt"

// Splice concatenates the buffers referenced by entries into one contiguous
// buffer. Retained entries must be supplied under their own key like any
// other entry. The result length always equals the sum of entry sizes.
func Splice(entries []Entry, buffers map[string][]byte) ([]byte, error) {
	total := 0
	for _, e := range entries {
		buf, ok := buffers[e.Key]
		if !ok {
			return nil, fmt.Errorf("%w: missing buffer for %s", ErrSpliceMismatch, e.Key)
		}
		if len(buf) != e.Size {
			return nil, fmt.Errorf("%w: %s is %d bytes, plan expects %d", ErrSpliceMismatch, e.Key, len(buf), e.Size)
		}
		total += e.Size
	}

	out := make([]byte, 0, total)
	for _, e := range entries {
		out = append(out, buffers[e.Key]...)
	}

	if len(out) != total {
		return nil, fmt.Errorf("%w: wrote %d bytes, expected %d", ErrSpliceMismatch, len(out), total)
	}
	return out, nil
}
