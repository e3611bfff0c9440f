package workdaysync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"workday-sync/lib/tree"
)

var (
	// ErrAmbiguousWidget is returned when a search that must yield exactly one
	// fragment of a Workday document yields none or several.
	ErrAmbiguousWidget = errors.New("workdaysync: did not find exactly one widget")
	// ErrCorrelationMissing is returned when a fragment was found but lacks
	// the reference the sync needs from it.
	ErrCorrelationMissing = errors.New("workdaysync: correlation missing")
)

// exactlyOne searches detail for the single mapping with key set to value.
func exactlyOne(ctx context.Context, detail any, key, value string) (map[string]any, error) {
	matches := tree.Search(detail, key, value)
	if len(matches) != 1 {
		slog.ErrorContext(
			ctx, "did not find exactly one widget",
			"key", key,
			"value", value,
			"count", len(matches),
			"matches", tree.Dump(matches),
			"tree", tree.Dump(detail),
		)
		return nil, fmt.Errorf("%w: %d matches for %s=%q", ErrAmbiguousWidget, len(matches), key, value)
	}
	return matches[0], nil
}

func missing(ctx context.Context, what string, fragment any) error {
	slog.ErrorContext(ctx, "workday document lacks a reference", "missing", what, "fragment", tree.Dump(fragment))
	return fmt.Errorf("%w: %s", ErrCorrelationMissing, what)
}
