// ABOUTME: Grid outcome annotations for the request log.
// ABOUTME: The dispatcher records which grid and action ran and the envelope error, if any.

package logging

import "context"

// Outcome is what a grid request ended in. Grid responses are always 200,
// so Error is the only failure signal the log gets for them.
type Outcome struct {
	Grid   string
	Action string
	Error  string
}

type outcomeKey struct{}

func withOutcome(ctx context.Context) (context.Context, *Outcome) {
	o := &Outcome{}
	return context.WithValue(ctx, outcomeKey{}, o), o
}

// Record attaches o to the request being logged. Outside the middleware it
// does nothing.
func Record(ctx context.Context, o Outcome) {
	if p, ok := ctx.Value(outcomeKey{}).(*Outcome); ok {
		*p = o
	}
}
