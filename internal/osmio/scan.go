package osmio

import (
	"errors"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/opinionated/internal/engine"
	"github.com/roach88/opinionated/internal/ir"
)

// ScanReferences collects the distinct reference ids found under key in a
// stream, sorted. Only the first ';'-separated element of a value is used.
// Values rejected by accept are logged and skipped.
func ScanReferences(src engine.Source, key string, accept func(string) bool) ([]string, error) {
	seen := make(map[string]struct{})
	var rejected int
	for {
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		raw, ok := rec.Entity.Tags.Get(key)
		if !ok {
			continue
		}
		ref := ir.PrimaryReference(raw)
		if accept != nil && !accept(ref) {
			rejected++
			slog.Warn("malformed reference skipped",
				"type", rec.Entity.Type.String(),
				"id", rec.Entity.ID,
				"value", raw,
			)
			continue
		}
		seen[ref] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for ref := range seen {
		out = append(out, ref)
	}
	slices.Sort(out)
	slog.Info("references collected", "unique", len(out), "rejected", rejected)
	return out, nil
}
