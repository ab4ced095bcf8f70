// ABOUTME: Grid descriptor, actions and per-request context for tabulator grids.
// ABOUTME: A descriptor is built fresh for every request by its Source.

package grid

import (
	"context"
	"net/url"
	"slices"

	"github.com/2389/tabulator/internal/auth"
	"github.com/2389/tabulator/internal/locale"
)

// Row is one record of grid data.
type Row = map[string]any

// AccessFunc decides whether the request may see a grid or run an action.
// A returned error denies access and its message is shown to the caller.
type AccessFunc func(ctx context.Context, req *Request) (bool, error)

// RowsFunc loads the grid's rows.
type RowsFunc func(ctx context.Context, req *Request) ([]Row, error)

// ExecFunc runs an action. A nil or empty result means "nothing to report".
type ExecFunc func(ctx context.Context, req *Request) (any, error)

// Allow grants access to everyone.
func Allow(context.Context, *Request) (bool, error) { return true, nil }

// RequireRole grants access to users holding any of roles.
func RequireRole(roles ...string) AccessFunc {
	return func(_ context.Context, req *Request) (bool, error) {
		return slices.ContainsFunc(roles, req.User.HasRole), nil
	}
}

// Request carries everything a grid may consult while serving one call.
type Request struct {
	Name       string
	LoadRows   bool
	User       *auth.User
	Language   *locale.Language
	Locale     string
	RowAction  string
	GridAction string
	Params     url.Values
}

// Param returns a request parameter.
func (r *Request) Param(key string) string {
	if r.Params == nil {
		return ""
	}
	return r.Params.Get(key)
}

// Column describes one widget column.
type Column struct {
	Field  string `json:"field"`
	Title  string `json:"title"`
	Sorter string `json:"sorter,omitempty"`
}

// Action is a named unit of work on a grid. A nil Access denies.
type Action struct {
	Name    string
	Title   string
	Access  AccessFunc
	Execute ExecFunc
}

// ActionInfo is the client-facing description of an action.
type ActionInfo struct {
	Name  string `json:"name"`
	Title string `json:"title,omitempty"`
}

// Descriptor is one grid's behavior for the current request.
type Descriptor struct {
	Name    string
	Title   string
	Columns []Column
	Access  AccessFunc
	Rows    RowsFunc

	rowActions  actionSet
	gridActions actionSet
}

// AddRowAction registers a row action, replacing any with the same name.
func (d *Descriptor) AddRowAction(a *Action) *Descriptor {
	d.rowActions.add(a)
	return d
}

// RowAction looks up a row action by name.
func (d *Descriptor) RowAction(name string) (*Action, bool) {
	return d.rowActions.get(name)
}

// AddGridAction registers a grid-level action.
func (d *Descriptor) AddGridAction(a *Action) *Descriptor {
	d.gridActions.add(a)
	return d
}

// GridAction looks up a grid-level action by name.
func (d *Descriptor) GridAction(name string) (*Action, bool) {
	return d.gridActions.get(name)
}

// Payload is the grid data object returned to the widget.
type Payload struct {
	Name        string       `json:"name"`
	Title       string       `json:"title,omitempty"`
	Locale      string       `json:"locale,omitempty"`
	Columns     []Column     `json:"columns,omitempty"`
	Data        []Row        `json:"data"`
	RowActions  []ActionInfo `json:"rowactions"`
	GridActions []ActionInfo `json:"gridactions"`
}

// JSONObject builds the payload. Rows are loaded only when req.LoadRows is set.
func (d *Descriptor) JSONObject(ctx context.Context, req *Request) (*Payload, error) {
	p := &Payload{
		Name:        d.Name,
		Title:       d.Title,
		Locale:      req.Locale,
		Columns:     d.Columns,
		Data:        []Row{},
		RowActions:  d.rowActions.infos(),
		GridActions: d.gridActions.infos(),
	}
	if req.LoadRows && d.Rows != nil {
		rows, err := d.Rows(ctx, req)
		if err != nil {
			return nil, err
		}
		if rows != nil {
			p.Data = rows
		}
	}
	return p, nil
}

// actionSet keeps actions in registration order.
type actionSet struct {
	order  []string
	byName map[string]*Action
}

func (s *actionSet) add(a *Action) {
	if s.byName == nil {
		s.byName = make(map[string]*Action)
	}
	if _, exists := s.byName[a.Name]; !exists {
		s.order = append(s.order, a.Name)
	}
	s.byName[a.Name] = a
}

func (s *actionSet) get(name string) (*Action, bool) {
	a, ok := s.byName[name]
	return a, ok
}

func (s *actionSet) infos() []ActionInfo {
	infos := make([]ActionInfo, 0, len(s.order))
	for _, name := range s.order {
		a := s.byName[name]
		infos = append(infos, ActionInfo{Name: a.Name, Title: a.Title})
	}
	return infos
}
