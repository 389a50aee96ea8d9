// Package cronexpr parses five-field cron expressions and computes firing
// times in a single configured time zone.
//
// It wraps github.com/adhocore/gronx the same way the teacher's
// internal/cron/service.go wraps it for NextTickAfter and IsValid, but
// exposes the narrow next_fire/is_due contract this spec's scheduler needs
// instead of owning job persistence itself.
package cronexpr

import (
	"fmt"
	"time"

	"github.com/adhocore/gronx"
)

// Evaluator computes cron firing times in a fixed IANA zone.
type Evaluator struct {
	loc *time.Location
	gx  gronx.Gronx
}

// New builds an Evaluator for the given IANA zone name (e.g. "Asia/Tokyo").
// An empty zone defaults to UTC.
func New(zone string) (*Evaluator, error) {
	if zone == "" {
		zone = "UTC"
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("cronexpr: load zone %q: %w", zone, err)
	}
	return &Evaluator{loc: loc, gx: gronx.New()}, nil
}

// Validate reports whether expr is a syntactically valid five-field cron
// expression. The Schedule Store backends do not call it: a schedule with
// an invalid expression is stored as written, and the scheduler logs and
// skips that entry on every tick.
func (e *Evaluator) Validate(expr string) error {
	if !e.gx.IsValid(expr) {
		return fmt.Errorf("cronexpr: invalid cron expression: %q", expr)
	}
	return nil
}

// NextFire returns the smallest instant strictly greater than reference
// that matches expr, evaluated in the Evaluator's configured zone.
func (e *Evaluator) NextFire(expr string, reference time.Time) (time.Time, error) {
	ref := reference.In(e.loc)
	next, err := gronx.NextTickAfter(expr, ref, false)
	if err != nil {
		return time.Time{}, fmt.Errorf("cronexpr: next fire for %q: %w", expr, err)
	}
	return next.In(e.loc), nil
}

// IsDue reports whether expr has a firing time at or before now, counting
// from lastFire (exclusive), and how many seconds remain until the next
// firing after now (useful as a sleep hint for the scheduler's tick loop).
func (e *Evaluator) IsDue(expr string, lastFire, now time.Time) (due bool, secondsUntilNext float64, err error) {
	next, err := e.NextFire(expr, lastFire)
	if err != nil {
		return false, 0, err
	}
	if !next.After(now) {
		return true, 0, nil
	}
	return false, next.Sub(now).Seconds(), nil
}
