// Package notify delivers workflow notifications. Delivery is best-effort:
// events are queued while a transaction runs and handed to a background
// Dispatcher after it commits, and a failing sink is logged without affecting
// the operation.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
)

// Event types.
const (
	EventConfirmRequested    = "PLAN_CONFIRM_REQUESTED"
	EventRequestCancelled    = "PLAN_CONFIRM_CANCELLED"
	EventPlanConfirmed       = "PLAN_CONFIRMED"
	EventPlanRejected        = "PLAN_REJECTED"
	EventPlanReopened        = "PLAN_REOPENED"
	EventEvaluationSubmitted = "EVALUATION_SUBMITTED"
)

// Event is one notification addressed to a set of employees.
type Event struct {
	Type       string
	ActorID    string
	CycleID    string
	Recipients []string
	Meta       map[string]any
}

// Notifier is a notification sink.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev Event) error

func (f NotifierFunc) Notify(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Multi fans an event out to every sink. All sinks are attempted.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes events to the standard logger.
type Log struct {
	Logger *log.Logger // nil uses the standard logger
}

func (l Log) Notify(_ context.Context, ev Event) error {
	if l.Logger != nil {
		l.Logger.Printf("notify: %s", Text(ev))
	} else {
		log.Printf("notify: %s", Text(ev))
	}
	return nil
}

// Outbox collects events during a transaction attempt.
type Outbox struct {
	events []Event
}

// Add queues an event. Events without recipients are dropped.
func (o *Outbox) Add(ev Event) {
	if len(ev.Recipients) == 0 {
		return
	}
	o.events = append(o.events, ev)
}

// Reset discards queued events; called at the start of every attempt.
func (o *Outbox) Reset() { o.events = o.events[:0] }

// Events returns the queued events.
func (o *Outbox) Events() []Event { return o.events }

// Flush hands queued events to d and empties the outbox.
func (o *Outbox) Flush(ctx context.Context, d *Dispatcher) {
	d.Send(ctx, o.events...)
	o.events = nil
}

// Dispatch sends events to n, logging and swallowing failures.
func Dispatch(ctx context.Context, n Notifier, events ...Event) {
	if n == nil {
		return
	}
	for _, ev := range events {
		if err := n.Notify(ctx, ev); err != nil {
			log.Printf("notify: %s to %s failed: %v", ev.Type, strings.Join(ev.Recipients, ","), err)
		}
	}
}

var titles = map[string]string{
	EventConfirmRequested:    "KPI plan awaiting your confirmation",
	EventRequestCancelled:    "KPI plan confirmation request cancelled",
	EventPlanConfirmed:       "KPI plan confirmed",
	EventPlanRejected:        "KPI plan rejected",
	EventPlanReopened:        "KPI plan reopened",
	EventEvaluationSubmitted: "Evaluation submitted",
}

// Title returns a short human-readable headline for the event type.
func Title(eventType string) string {
	if t, ok := titles[eventType]; ok {
		return t
	}
	return eventType
}

// Text renders an event as a single line.
func Text(ev Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (by %s, cycle %s) to %s", Title(ev.Type), ev.ActorID, ev.CycleID, strings.Join(ev.Recipients, ", "))
	for _, k := range metaKeys(ev.Meta) {
		fmt.Fprintf(&b, " %s=%v", k, ev.Meta[k])
	}
	return b.String()
}

func metaKeys(meta map[string]any) []string {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
