package janitor

import (
	"context"
	"log"
	"time"

	"seedbox-gateway/internal/catalog"
	"seedbox-gateway/internal/token"
)

// Run keeps catalog snapshots warm and the token registry small until the
// context is done. Refresh failures keep the previous snapshot; sweeps drop
// single-use records whose token has expired anyway.
func Run(ctx context.Context, catalogs *catalog.Service, kinds []string, registry *token.Registry, refreshEvery time.Duration) {
	refresh := time.NewTicker(refreshEvery)
	defer refresh.Stop()
	sweep := time.NewTicker(time.Minute)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-refresh.C:
			start := time.Now()
			catalogs.Refresh(ctx, kinds)
			log.Printf("[janitor] refreshed %d catalogs in %s", len(kinds), time.Since(start).Truncate(time.Millisecond))
		case <-sweep.C:
			if n := registry.Sweep(time.Now()); n > 0 {
				log.Printf("[janitor] swept %d expired link records", n)
			}
		}
	}
}
