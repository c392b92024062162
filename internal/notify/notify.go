// Package notify fans attribution results out to every configured destination.
package notify

import (
	"context"
	"errors"
	"fmt"
	"invitetrack/entity"
)

type Sink interface {
	Joined(ctx context.Context, a *entity.Attribution) error
	Left(ctx context.Context, d *entity.Departure) error
}

type named struct {
	name string
	sink Sink
}

// Fanout delivers to all sinks in registration order. A failing sink does not stop
// delivery to the others; all failures are returned joined.
type Fanout struct {
	sinks []named
}

func NewFanout() *Fanout {
	return &Fanout{}
}

// Add registers a sink. Nil sinks are ignored so optional destinations can be passed
// unconditionally.
func (f *Fanout) Add(name string, sink Sink) *Fanout {
	if sink != nil {
		f.sinks = append(f.sinks, named{name: name, sink: sink})
	}
	return f
}

func (f *Fanout) Len() int {
	return len(f.sinks)
}

func (f *Fanout) Joined(ctx context.Context, a *entity.Attribution) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.sink.Joined(ctx, a); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) Left(ctx context.Context, d *entity.Departure) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.sink.Left(ctx, d); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}
