// ABOUTME: The "tabulator" Starlark module: grid, action and column builtins.
// ABOUTME: Script values are turned into grid descriptors with Go callbacks.

package scriptgrid

import (
	"context"
	"fmt"

	"github.com/2389/tabulator/internal/grid"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Module is predeclared as "tabulator" in every grid script.
var Module = &starlarkstruct.Module{
	Name: "tabulator",
	Members: starlark.StringDict{
		"grid":         starlark.NewBuiltin("grid", newGrid),
		"action":       starlark.NewBuiltin("action", newAction),
		"column":       starlark.NewBuiltin("column", newColumn),
		"allow":        starlark.NewBuiltin("allow", allow),
		"require_role": starlark.NewBuiltin("require_role", requireRole),
	},
}

// gridValue is what tabulator.grid returns.
type gridValue struct {
	title       string
	columns     []grid.Column
	access      starlark.Callable
	rows        starlark.Callable
	rowActions  []*actionValue
	gridActions []*actionValue
}

var _ starlark.Value = (*gridValue)(nil)

func (g *gridValue) String() string        { return fmt.Sprintf("<grid %q>", g.title) }
func (g *gridValue) Type() string          { return "grid" }
func (g *gridValue) Truth() starlark.Bool  { return starlark.True }
func (g *gridValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: grid") }

func (g *gridValue) Freeze() {
	freeze(g.access, g.rows)
	for _, a := range g.rowActions {
		a.Freeze()
	}
	for _, a := range g.gridActions {
		a.Freeze()
	}
}

// actionValue is what tabulator.action returns.
type actionValue struct {
	name   string
	title  string
	access starlark.Callable
	run    starlark.Callable
}

var _ starlark.Value = (*actionValue)(nil)

func (a *actionValue) String() string        { return fmt.Sprintf("<action %q>", a.name) }
func (a *actionValue) Type() string          { return "action" }
func (a *actionValue) Freeze()               { freeze(a.access, a.run) }
func (a *actionValue) Truth() starlark.Bool  { return starlark.True }
func (a *actionValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: action") }

func freeze(fns ...starlark.Callable) {
	for _, fn := range fns {
		if fn != nil {
			fn.Freeze()
		}
	}
}

// tabulator.grid(title="", columns=[], access=None, rows=None, rowactions=[], gridactions=[])
func newGrid(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		title                   string
		columns                 *starlark.List
		access, rows            starlark.Value = starlark.None, starlark.None
		rowActions, gridActions *starlark.List
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"title?", &title,
		"columns?", &columns,
		"access?", &access,
		"rows?", &rows,
		"rowactions?", &rowActions,
		"gridactions?", &gridActions,
	); err != nil {
		return nil, err
	}

	g := &gridValue{title: title}
	var err error
	if g.access, err = optCallable(b.Name(), "access", access); err != nil {
		return nil, err
	}
	if g.rows, err = optCallable(b.Name(), "rows", rows); err != nil {
		return nil, err
	}
	if g.columns, err = unpackColumns(columns); err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	if g.rowActions, err = unpackActions("rowactions", rowActions); err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	if g.gridActions, err = unpackActions("gridactions", gridActions); err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return g, nil
}

// tabulator.action(name, run, access=None, title="")
func newAction(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		name, title string
		run         starlark.Callable
		access      starlark.Value = starlark.None
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"name", &name,
		"run", &run,
		"access?", &access,
		"title?", &title,
	); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("%s: name must not be empty", b.Name())
	}
	fn, err := optCallable(b.Name(), "access", access)
	if err != nil {
		return nil, err
	}
	return &actionValue{name: name, title: title, access: fn, run: run}, nil
}

// tabulator.column(field, title="", sorter="")
func newColumn(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var field, title, sorter string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"field", &field,
		"title?", &title,
		"sorter?", &sorter,
	); err != nil {
		return nil, err
	}
	if title == "" {
		title = field
	}
	return starlarkstruct.FromStringDict(starlark.String("column"), starlark.StringDict{
		"field":  starlark.String(field),
		"title":  starlark.String(title),
		"sorter": starlark.String(sorter),
	}), nil
}

// tabulator.allow(ctx) grants access to everyone.
func allow(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var ctx starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0, &ctx); err != nil {
		return nil, err
	}
	return starlark.True, nil
}

// tabulator.require_role(*roles) returns a predicate granting access to
// callers holding any of roles.
func requireRole(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
	}
	roles := make([]string, 0, len(args))
	for i, v := range args {
		s, ok := starlark.AsString(v)
		if !ok {
			return nil, fmt.Errorf("%s: role %d: got %s, want string", b.Name(), i, v.Type())
		}
		roles = append(roles, s)
	}
	pred := grid.RequireRole(roles...)
	return starlark.NewBuiltin("require_role", func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		req, _ := thread.Local(requestKey).(*grid.Request)
		if req == nil {
			return starlark.False, nil
		}
		ok, err := pred(context.Background(), req)
		return starlark.Bool(ok), err
	}), nil
}

func optCallable(fnName, param string, v starlark.Value) (starlark.Callable, error) {
	if v == nil || v == starlark.None {
		return nil, nil
	}
	fn, ok := v.(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("%s: for parameter %s: got %s, want callable or None", fnName, param, v.Type())
	}
	return fn, nil
}

func unpackColumns(list *starlark.List) ([]grid.Column, error) {
	if list == nil {
		return nil, nil
	}
	cols := make([]grid.Column, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		switch v := list.Index(i).(type) {
		case starlark.String:
			cols = append(cols, grid.Column{Field: string(v), Title: string(v)})
		case *starlarkstruct.Struct:
			cols = append(cols, grid.Column{
				Field:  structString(v, "field"),
				Title:  structString(v, "title"),
				Sorter: structString(v, "sorter"),
			})
		default:
			return nil, fmt.Errorf("columns[%d]: got %s, want string or column", i, v.Type())
		}
	}
	return cols, nil
}

func structString(s *starlarkstruct.Struct, name string) string {
	v, err := s.Attr(name)
	if err != nil || v == nil {
		return ""
	}
	str, _ := starlark.AsString(v)
	return str
}

func unpackActions(param string, list *starlark.List) ([]*actionValue, error) {
	if list == nil {
		return nil, nil
	}
	actions := make([]*actionValue, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		a, ok := list.Index(i).(*actionValue)
		if !ok {
			return nil, fmt.Errorf("%s[%d]: got %s, want action", param, i, list.Index(i).Type())
		}
		actions = append(actions, a)
	}
	return actions, nil
}

const requestKey = "tabulator.request"

// descriptor converts the script's grid into a descriptor whose callbacks
// run the script functions on fresh threads.
func (g *gridValue) descriptor(d *Dir, name string) *grid.Descriptor {
	desc := &grid.Descriptor{
		Title:   g.title,
		Columns: g.columns,
	}
	if g.access != nil {
		desc.Access = d.accessFunc(name, g.access)
	}
	if g.rows != nil {
		desc.Rows = d.rowsFunc(name, g.rows)
	}
	for _, a := range g.rowActions {
		desc.AddRowAction(a.action(d, name))
	}
	for _, a := range g.gridActions {
		desc.AddGridAction(a.action(d, name))
	}
	return desc
}

func (a *actionValue) action(d *Dir, gridName string) *grid.Action {
	act := &grid.Action{
		Name:    a.name,
		Title:   a.title,
		Execute: d.execFunc(gridName, a.run),
	}
	if a.access != nil {
		act.Access = d.accessFunc(gridName, a.access)
	}
	return act
}

// call invokes fn(ctx) on a new thread.
func (d *Dir) call(ctx context.Context, gridName string, fn starlark.Callable, req *grid.Request) (starlark.Value, error) {
	thread, done := d.newThread(ctx, gridName)
	defer done()
	thread.SetLocal(requestKey, req)

	v, err := starlark.Call(thread, fn, starlark.Tuple{requestValue(req)}, nil)
	if err != nil {
		return nil, scriptError(err)
	}
	return v, nil
}

func (d *Dir) accessFunc(gridName string, fn starlark.Callable) grid.AccessFunc {
	return func(ctx context.Context, req *grid.Request) (bool, error) {
		v, err := d.call(ctx, gridName, fn, req)
		if err != nil {
			return false, err
		}
		return bool(v.Truth()), nil
	}
}

func (d *Dir) rowsFunc(gridName string, fn starlark.Callable) grid.RowsFunc {
	return func(ctx context.Context, req *grid.Request) ([]grid.Row, error) {
		v, err := d.call(ctx, gridName, fn, req)
		if err != nil {
			return nil, err
		}
		return toRows(v)
	}
}

func (d *Dir) execFunc(gridName string, fn starlark.Callable) grid.ExecFunc {
	return func(ctx context.Context, req *grid.Request) (any, error) {
		v, err := d.call(ctx, gridName, fn, req)
		if err != nil {
			return nil, err
		}
		return toGo(v)
	}
}
