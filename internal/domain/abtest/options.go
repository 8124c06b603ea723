package abtest

import (
	"time"
)

// ListOptions filters the result of List. Zero values match everything.
type ListOptions struct {
	Status Status
	Owner  string
	Limit  int
}

func (o ListOptions) match(rec *TestRecord) bool {
	if o.Status != "" && rec.Status != o.Status {
		return false
	}
	if o.Owner != "" && !sameIdentity(o.Owner, rec.Owner) {
		return false
	}
	return true
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides how new test ids are minted.
func WithIDGenerator(gen func(time.Time) string) Option {
	return func(s *Service) { s.newID = gen }
}
