package cache

import (
	"context"
	"fmt"
)

// SweepStale deletes versioned entries older than current on either axis.
// Keys without version tags are left alone. Returns the number removed.
func SweepStale(ctx context.Context, s Store, current Versions) (int, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list cache keys: %w", err)
	}

	var stale []string
	for _, k := range keys {
		v, ok := ParseVersions(k)
		if ok && v.Stale(current) {
			stale = append(stale, k)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := s.Delete(ctx, stale...); err != nil {
		return 0, fmt.Errorf("failed to delete stale cache keys: %w", err)
	}
	return len(stale), nil
}
