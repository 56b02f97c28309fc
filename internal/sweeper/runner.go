// Package sweeper contains the two background loops that clean up after
// clients who walk away: one releases expired temporary holds, the other
// cancels reservations whose payment deadline has passed.  Both are safe to
// run on several replicas at once because all their mutations happen under
// database row locks.
package sweeper

import (
	"context"
	"log"
	"time"
)

// Runner drives a sweep function on a fixed interval until the context is
// cancelled.  Errors are logged and the loop keeps going; a broken sweep
// run must never take the process down.
type Runner struct {
	Name     string
	Interval time.Duration
	Sweep    func(ctx context.Context) error
}

// Run blocks until ctx is done.  The first sweep fires after one interval,
// not immediately, so a restarting fleet does not stampede the database.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	log.Printf("%s sweeper running every %s", r.Name, r.Interval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("%s sweeper stopped", r.Name)
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				log.Printf("%s sweep: %v", r.Name, err)
			}
		}
	}
}
