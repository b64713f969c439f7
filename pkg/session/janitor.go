package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Janitor periodically deletes stored conversations that have not been
// updated within MaxAge.
type Janitor struct {
	store  Store
	maxAge time.Duration
	cron   *cron.Cron
}

// NewJanitor builds a janitor over store. schedule is a standard cron
// expression; maxAge must be positive.
func NewJanitor(store Store, schedule string, maxAge time.Duration) (*Janitor, error) {
	if maxAge <= 0 {
		return nil, fmt.Errorf("janitor max age %v is not positive", maxAge)
	}
	j := &Janitor{
		store:  store,
		maxAge: maxAge,
		cron:   cron.New(),
	}
	if _, err := j.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if n, err := j.Sweep(ctx); err != nil {
			log.Printf("session janitor sweep failed: %v", err)
		} else if n > 0 {
			log.Printf("session janitor removed %d stale sessions", n)
		}
	}); err != nil {
		return nil, err
	}
	return j, nil
}

// Start begins the schedule in its own goroutine.
func (j *Janitor) Start() { j.cron.Start() }

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// Sweep deletes every record older than MaxAge and reports how many
// were removed. A record that disappears mid-sweep is not an error.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	summaries, err := j.store.List(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().Add(-j.maxAge)
	removed := 0
	for _, s := range summaries {
		if s.UpdatedAt.After(cutoff) {
			continue
		}
		if err := j.store.Delete(ctx, s.SessionID); err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				continue
			}
			return removed, err
		}
		removed++
	}
	return removed, nil
}
