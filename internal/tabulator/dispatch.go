// ABOUTME: Routes a grid request to a row action, a grid action, or the grid data.
// ABOUTME: Every outcome, including panics, becomes exactly one response envelope.

package tabulator

import (
	"context"
	"errors"
	"fmt"
	"log"

	apperrors "github.com/2389/tabulator/internal/errors"
	"github.com/2389/tabulator/internal/grid"
	"github.com/2389/tabulator/internal/response"
)

// Denial messages for actions.
const (
	MsgRowActionDenied  = "You are not allowed to execute this rowaction"
	MsgGridActionDenied = "You are not allowed to execute this gridaction"
)

// Dispatch serves req: a requested row action first, then a grid action,
// otherwise the grid with its rows. The result is ready to encode.
func (h *Handler) Dispatch(ctx context.Context, req *grid.Request) (data any) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("tabulator: grid %s panicked: %v", req.Name, p)
			data = response.Error(apperrors.ActionFailure(fmt.Errorf("%v", p)))
		}
	}()

	if fired, out := h.DispatchRowAction(ctx, req); fired {
		return out
	}
	if fired, out := h.DispatchGridAction(ctx, req); fired {
		return out
	}

	d, err := h.grids.Resolve(ctx, req, true)
	if err != nil {
		return h.fail(req, err)
	}
	payload, err := d.JSONObject(ctx, req)
	if err != nil {
		return h.fail(req, err)
	}
	return payload
}

// DispatchRowAction runs req.RowAction. It reports false, without touching
// the grid, when no row action was requested.
func (h *Handler) DispatchRowAction(ctx context.Context, req *grid.Request) (bool, any) {
	return h.dispatchAction(ctx, req, req.RowAction, (*grid.Descriptor).RowAction, MsgRowActionDenied)
}

// DispatchGridAction runs req.GridAction, like DispatchRowAction.
func (h *Handler) DispatchGridAction(ctx context.Context, req *grid.Request) (bool, any) {
	return h.dispatchAction(ctx, req, req.GridAction, (*grid.Descriptor).GridAction, MsgGridActionDenied)
}

type actionLookup func(d *grid.Descriptor, name string) (*grid.Action, bool)

func (h *Handler) dispatchAction(ctx context.Context, req *grid.Request, name string, lookup actionLookup, deniedMsg string) (bool, any) {
	if name == "" {
		return false, nil
	}

	d, err := h.grids.Resolve(ctx, req, false)
	if err != nil {
		return true, h.fail(req, err)
	}

	a, ok := lookup(d, name)
	if !ok {
		return true, h.fail(req, apperrors.NotFound("Action %s not found", name))
	}
	if err := grid.CheckAction(ctx, a, req, deniedMsg); err != nil {
		return true, h.fail(req, err)
	}

	result, err := execute(ctx, a, req)
	if err != nil {
		return true, h.fail(req, err)
	}
	return true, response.Success(result)
}

// execute runs the action, turning a panic into an error.
func execute(ctx context.Context, a *grid.Action, req *grid.Request) (result any, err error) {
	if a.Execute == nil {
		return nil, nil
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%v", p)
		}
	}()
	return a.Execute(ctx, req)
}

// fail converts err to the error envelope, classifying unknown errors as
// action failures.
func (h *Handler) fail(req *grid.Request, err error) map[string]any {
	switch apperrors.KindOf(err) {
	case apperrors.KindInvalidGrid, apperrors.KindActionFailure:
		log.Printf("tabulator: grid %s: %v", req.Name, err)
	}
	var typed *apperrors.Error
	if !errors.As(err, &typed) {
		typed = apperrors.ActionFailure(err)
	}
	return response.Error(typed)
}
