package audit

import (
	"context"
	"errors"
)

// Fanout appends each event to every configured sink. The first sink
// is the store of record and populates the chain fields; the rest see
// the filled-in event. Errors from all sinks are joined so the caller
// can log them, but the caller decides whether any of them matter.
type Fanout struct {
	sinks []Trail
}

func NewFanout(sinks ...Trail) *Fanout {
	out := make([]Trail, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Fanout{sinks: out}
}

func (f *Fanout) Append(ctx context.Context, ev *Event) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Append(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
