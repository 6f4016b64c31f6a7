package pipeline

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule is a parsed five-field cron expression
// (minute hour day-of-month month day-of-week) or a descriptor such as
// "@daily". Times are evaluated in the location of the instant passed to
// Next unless the expression carries a TZ= prefix.
type Schedule struct {
	expr  string
	sched cron.Schedule
}

// ParseSchedule parses expr.
func ParseSchedule(expr string) (*Schedule, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("cron %q: %w", expr, err)
	}
	return &Schedule{expr: expr, sched: sched}, nil
}

func (s *Schedule) String() string { return s.expr }

// Next returns the first activation strictly after after. ok is false for
// an expression that can never fire.
func (s *Schedule) Next(after time.Time) (time.Time, bool) {
	next := s.sched.Next(after)
	return next, !next.IsZero()
}
