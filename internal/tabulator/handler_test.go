// ABOUTME: End-to-end tests for the grid AJAX interceptor and dispatcher.
// ABOUTME: Drives the handler over httptest with in-memory grid sources.

package tabulator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/2389/tabulator/internal/auth"
	"github.com/2389/tabulator/internal/grid"
	"github.com/2389/tabulator/internal/locale"
	"github.com/2389/tabulator/internal/logging"
	"github.com/2389/tabulator/internal/scriptgrid"
	"github.com/klauspost/compress/gzip"
)

type fakeLanguages map[int64]*locale.Language

func (f fakeLanguages) GetLanguage(id int64) (*locale.Language, error) {
	return f[id], nil
}

func (f fakeLanguages) GetLanguageByName(name string) (*locale.Language, error) {
	for _, l := range f {
		if l.Name == name {
			return l, nil
		}
	}
	return nil, nil
}

var testLanguages = fakeLanguages{
	1: {ID: 1, Name: "default", Title: "English"},
	2: {ID: 2, Name: "de", Title: "Deutsch"},
}

// fixture is a grid source whose behavior tests can tune and observe.
type fixture struct {
	name       string
	access     grid.AccessFunc
	rows       []grid.Row
	rowsLoaded int
	loads      int
	seenLang   string
	build      func(d *grid.Descriptor)
}

func (f *fixture) Name() string     { return f.name }
func (f *fixture) Location() string { return "fixtures/" + f.name }

func (f *fixture) Load(_ context.Context, req *grid.Request) (*grid.Descriptor, error) {
	f.loads++
	d := &grid.Descriptor{
		Title:  "Sales",
		Access: f.access,
		Rows: func(_ context.Context, req *grid.Request) ([]grid.Row, error) {
			f.rowsLoaded++
			if req.Language != nil {
				f.seenLang = req.Language.Name
			}
			return f.rows, nil
		},
	}
	if f.build != nil {
		f.build(d)
	}
	return d, nil
}

func finder(sources ...grid.Source) grid.Finder {
	m := make(map[string]grid.Source)
	for _, s := range sources {
		m[s.Name()] = s
	}
	return grid.FinderFunc(func(name string) (grid.Source, bool) {
		s, ok := m[name]
		return s, ok
	})
}

func newTestHandler(f grid.Finder) (*Handler, *int) {
	fallbacks := new(int)
	fallback := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*fallbacks++
		http.NotFound(w, r)
	})
	return NewHandler(grid.NewResolver(f), testLanguages, locale.NewResolver(nil, locale.DefaultStrings()), fallback), fallbacks
}

// post sends a grid AJAX request and decodes the gzip JSON body.
func post(t *testing.T, h http.Handler, rawQuery string, form url.Values, user *auth.User) (*http.Response, map[string]any) {
	t.Helper()
	target := SentinelPath
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Accept-Encoding", "gzip")
	if user != nil {
		req = req.WithContext(auth.WithUser(req.Context(), user))
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	resp := w.Result()

	if resp.StatusCode != http.StatusOK {
		return resp, nil
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q, want application/json", ct)
	}
	if ce := resp.Header.Get("Content-Encoding"); ce != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", ce)
	}
	zr, err := gzip.NewReader(resp.Body)
	if err != nil {
		t.Fatalf("gzip.NewReader() error = %v", err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read gzip body: %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("body %q is not JSON: %v", raw, err)
	}
	return resp, body
}

func TestScenarioA_GridData(t *testing.T) {
	sales := &fixture{name: "sales", access: grid.Allow, rows: []grid.Row{{"id": 1}}}
	h, _ := newTestHandler(finder(sales))

	_, body := post(t, h, "", url.Values{"name": {"sales"}}, nil)

	data, ok := body["data"].([]any)
	if !ok || len(data) != 1 {
		t.Fatalf("data = %v, want one row", body["data"])
	}
	if row := data[0].(map[string]any); row["id"] != float64(1) {
		t.Errorf("row = %v, want id 1", row)
	}
	if body["name"] != "sales" {
		t.Errorf("name = %v, want sales", body["name"])
	}
	if body["locale"] != "en-gb" {
		t.Errorf("locale = %v, want en-gb from the default language", body["locale"])
	}
}

func TestScenarioB_RowActionDenied(t *testing.T) {
	executed := false
	sales := &fixture{name: "sales", access: grid.Allow, build: func(d *grid.Descriptor) {
		d.AddRowAction(&grid.Action{
			Name:   "export",
			Access: func(context.Context, *grid.Request) (bool, error) { return false, nil },
			Execute: func(context.Context, *grid.Request) (any, error) {
				executed = true
				return "csv", nil
			},
		})
	}}
	h, _ := newTestHandler(finder(sales))

	_, body := post(t, h, "rowaction=export", url.Values{"name": {"sales"}}, nil)

	want := map[string]any{"error": MsgRowActionDenied}
	if !reflect.DeepEqual(body, want) {
		t.Errorf("body = %v, want %v", body, want)
	}
	if executed {
		t.Error("action executed despite denial")
	}
	if sales.rowsLoaded != 0 {
		t.Errorf("rows loaded %d times during row action, want 0", sales.rowsLoaded)
	}
}

func TestScenarioC_ScriptNotAGrid(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "plain.star"), []byte(`grid = "not a grid"`), 0o644); err != nil {
		t.Fatal(err)
	}
	scripts, err := scriptgrid.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer scripts.Close()

	h, _ := newTestHandler(grid.Finders{finder(), scripts})

	_, body := post(t, h, "", url.Values{"name": {"plain"}}, nil)

	want := filepath.Join(dir, "plain.star") + " must return a Grid object!"
	if body["error"] != want || len(body) != 1 {
		t.Errorf("body = %v, want {error: %q}", body, want)
	}
}

func TestScenarioD_LanguageSwitch(t *testing.T) {
	var accessLang string
	sales := &fixture{name: "sales", rows: []grid.Row{{"id": 1}}}
	sales.access = func(_ context.Context, req *grid.Request) (bool, error) {
		if req.Language != nil {
			accessLang = req.Language.Name
		}
		return true, nil
	}
	h, _ := newTestHandler(finder(sales))
	user := &auth.User{Name: "sam", LanguageID: 1}

	_, body := post(t, h, "", url.Values{"name": {"sales"}, "lang": {"2"}}, user)

	if accessLang != "de" || sales.seenLang != "de" {
		t.Errorf("access saw %q, rows saw %q, want de", accessLang, sales.seenLang)
	}
	if body["locale"] != "de-de" {
		t.Errorf("locale = %v, want de-de", body["locale"])
	}

	// The switch is scoped to one request.
	_, body = post(t, h, "", url.Values{"name": {"sales"}}, user)
	if accessLang != "default" || body["locale"] != "en-gb" {
		t.Errorf("next request: language %q locale %v, want default/en-gb", accessLang, body["locale"])
	}
}

func TestLanguageSwitch_UnknownIDKeepsUserLanguage(t *testing.T) {
	sales := &fixture{name: "sales", access: grid.Allow}
	h, _ := newTestHandler(finder(sales))

	_, body := post(t, h, "", url.Values{"name": {"sales"}, "lang": {"99"}}, &auth.User{Name: "sam", LanguageID: 2})
	if body["locale"] != "de-de" {
		t.Errorf("locale = %v, want de-de", body["locale"])
	}
}

func TestRowAction(t *testing.T) {
	newSales := func() *fixture {
		return &fixture{name: "sales", access: grid.Allow, rows: []grid.Row{{"id": 1}}, build: func(d *grid.Descriptor) {
			d.AddRowAction(&grid.Action{
				Name:   "export",
				Access: grid.RequireRole("admin"),
				Execute: func(_ context.Context, req *grid.Request) (any, error) {
					return "exported " + req.Param("id"), nil
				},
			})
			d.AddRowAction(&grid.Action{
				Name:    "touch",
				Access:  grid.Allow,
				Execute: func(context.Context, *grid.Request) (any, error) { return nil, nil },
			})
			d.AddRowAction(&grid.Action{
				Name:    "zero",
				Access:  grid.Allow,
				Execute: func(context.Context, *grid.Request) (any, error) { return 0, nil },
			})
			d.AddRowAction(&grid.Action{
				Name:    "boom",
				Access:  grid.Allow,
				Execute: func(context.Context, *grid.Request) (any, error) { return nil, errors.New("disk full") },
			})
			d.AddRowAction(&grid.Action{
				Name:    "panic",
				Access:  grid.Allow,
				Execute: func(context.Context, *grid.Request) (any, error) { panic("nil map write") },
			})
			d.AddRowAction(&grid.Action{
				Name:    "nopredicate",
				Execute: func(context.Context, *grid.Request) (any, error) { return "ran", nil },
			})
		}}
	}
	admin := &auth.User{Name: "ada", Roles: []string{"admin"}}

	tests := []struct {
		name   string
		action string
		user   *auth.User
		want   map[string]any
	}{
		{"success", "export", admin, map[string]any{"success": "exported 7"}},
		{"role missing", "export", &auth.User{Name: "bob"}, map[string]any{"error": MsgRowActionDenied}},
		{"nil result", "touch", nil, map[string]any{}},
		{"falsy result", "zero", nil, map[string]any{}},
		{"error", "boom", nil, map[string]any{"error": "disk full"}},
		{"panic", "panic", nil, map[string]any{"error": "nil map write"}},
		{"no predicate denies", "nopredicate", admin, map[string]any{"error": MsgRowActionDenied}},
		{"unknown action", "missing", admin, map[string]any{"error": "Action missing not found"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sales := newSales()
			h, _ := newTestHandler(finder(sales))

			_, body := post(t, h, "rowaction="+tt.action, url.Values{"name": {"sales"}, "id": {"7"}}, tt.user)

			if !reflect.DeepEqual(body, tt.want) {
				t.Errorf("body = %v, want %v", body, tt.want)
			}
			if sales.rowsLoaded != 0 {
				t.Errorf("rows loaded %d times, want 0", sales.rowsLoaded)
			}
		})
	}
}

func TestGridAction(t *testing.T) {
	sales := &fixture{name: "sales", access: grid.Allow, build: func(d *grid.Descriptor) {
		d.AddGridAction(&grid.Action{
			Name:    "summary",
			Access:  grid.Allow,
			Execute: func(context.Context, *grid.Request) (any, error) { return map[string]any{"total": 3}, nil },
		})
		d.AddGridAction(&grid.Action{Name: "purge", Access: grid.RequireRole("admin")})
	}}
	h, _ := newTestHandler(finder(sales))

	_, body := post(t, h, "", url.Values{"name": {"sales"}, "gridaction": {"summary"}}, nil)
	want := map[string]any{"success": map[string]any{"total": float64(3)}}
	if !reflect.DeepEqual(body, want) {
		t.Errorf("summary body = %v, want %v", body, want)
	}

	_, body = post(t, h, "", url.Values{"name": {"sales"}, "gridaction": {"purge"}}, nil)
	if body["error"] != MsgGridActionDenied {
		t.Errorf("purge body = %v, want grid action denial", body)
	}

	_, body = post(t, h, "rowaction=summary", url.Values{"name": {"sales"}, "gridaction": {"summary"}}, nil)
	if body["error"] != "Action summary not found" {
		t.Errorf("row action lookup must not see grid actions, body = %v", body)
	}
}

func TestGridErrors(t *testing.T) {
	denied := &fixture{name: "secret", access: func(context.Context, *grid.Request) (bool, error) { return false, nil }}
	explained := &fixture{name: "locked", access: func(context.Context, *grid.Request) (bool, error) {
		return false, errors.New("Locked until month end")
	}}
	open := &fixture{name: "open"}
	h, _ := newTestHandler(finder(denied, explained, open))

	tests := []struct {
		name string
		want string
	}{
		{"secret", "NO ACCESS"},
		{"locked", "Locked until month end"},
		{"open", "NO ACCESS"},
		{"unknown", "Grid unknown not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, body := post(t, h, "", url.Values{"name": {tt.name}}, nil)
			if body["error"] != tt.want || len(body) != 1 {
				t.Errorf("body = %v, want {error: %q}", body, tt.want)
			}
		})
	}
	if denied.rowsLoaded != 0 || explained.rowsLoaded != 0 {
		t.Error("rows loaded for a denied grid")
	}
}

func TestFallthrough(t *testing.T) {
	sales := &fixture{name: "sales", access: grid.Allow}
	h, fallbacks := newTestHandler(finder(sales))

	tests := []struct {
		name   string
		path   string
		ajax   bool
		method string
		body   string
	}{
		{"not ajax", SentinelPath, false, http.MethodPost, "name=sales"},
		{"other path", "/about/", true, http.MethodPost, "name=sales"},
		{"missing name", SentinelPath, true, http.MethodPost, "lang=2"},
		{"name only in query", SentinelPath + "?name=sales", true, http.MethodGet, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := *fallbacks
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			if tt.ajax {
				req.Header.Set("X-Requested-With", "XMLHttpRequest")
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if w.Code != http.StatusNotFound {
				t.Errorf("status = %d, want 404", w.Code)
			}
			if *fallbacks != before+1 {
				t.Error("fallback handler was not called")
			}
		})
	}
	if sales.loads != 0 {
		t.Errorf("grid loaded %d times on fallthrough, want 0", sales.loads)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/rocktabulator":      SentinelPath,
		"/rocktabulator/":     SentinelPath,
		"//rocktabulator/./":  SentinelPath,
		"/a/../rocktabulator": SentinelPath,
		"/":                   "/",
		"/rocktabulator/x":    "/rocktabulator/x/",
	}
	for in, want := range tests {
		if got := normalizePath(in); got != want {
			t.Errorf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDispatch_RecoversSourcePanic(t *testing.T) {
	h := NewHandler(grid.NewResolver(grid.FinderFunc(func(string) (grid.Source, bool) {
		panic("registry corrupted")
	})), nil, nil, nil)

	got := h.Dispatch(context.Background(), &grid.Request{Name: "sales"})
	want := map[string]any{"error": "registry corrupted"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Dispatch() = %v, want %v", got, want)
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		name string
		req  *grid.Request
		data any
		want logging.Outcome
	}{
		{"data", &grid.Request{Name: "sales"}, &grid.Payload{Name: "sales"}, logging.Outcome{Grid: "sales"}},
		{"row action success", &grid.Request{Name: "sales", RowAction: "export"}, map[string]any{"success": "ok"}, logging.Outcome{Grid: "sales", Action: "export"}},
		{"grid action error", &grid.Request{Name: "sales", GridAction: "summary"}, map[string]any{"error": "NO ACCESS"}, logging.Outcome{Grid: "sales", Action: "summary", Error: "NO ACCESS"}},
		{"empty result", &grid.Request{Name: "sales", RowAction: "touch"}, map[string]any{}, logging.Outcome{Grid: "sales", Action: "touch"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := outcome(tt.req, tt.data); got != tt.want {
				t.Errorf("outcome() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
