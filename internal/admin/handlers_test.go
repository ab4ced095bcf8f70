// ABOUTME: Tests for the admin UI handlers.
// ABOUTME: Exercises the dashboard, grid bootstrap page, locale config and request log views.

package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/2389/tabulator/internal/auth"
	"github.com/2389/tabulator/internal/grid"
	"github.com/2389/tabulator/internal/locale"
	"github.com/2389/tabulator/internal/store"
	"github.com/go-chi/chi/v5"
)

type pageSource struct {
	name   string
	access grid.AccessFunc
}

func (p *pageSource) Name() string     { return p.name }
func (p *pageSource) Location() string { return "fixtures/" + p.name }

func (p *pageSource) Load(_ context.Context, req *grid.Request) (*grid.Descriptor, error) {
	title := "Orders"
	if req.Locale == "de-de" {
		title = "Bestellungen"
	}
	d := &grid.Descriptor{
		Title:   title,
		Columns: []grid.Column{{Field: "id", Title: "ID"}, {Field: "customer", Title: "Customer"}},
		Access:  p.access,
		Rows: func(context.Context, *grid.Request) ([]grid.Row, error) {
			panic("rows must not load on the admin page")
		},
	}
	d.AddRowAction(&grid.Action{Name: "export", Title: "Export", Access: grid.Allow})
	d.AddGridAction(&grid.Action{Name: "refresh", Title: "Refresh", Access: grid.Allow})
	return d, nil
}

type fakeScripts []string

func (f fakeScripts) Names() ([]string, error) { return f, nil }

func setupTestServer(t *testing.T) (*chi.Mux, *store.Store) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	sources := map[string]grid.Source{
		"orders": &pageSource{name: "orders", access: grid.Allow},
		"secret": &pageSource{name: "secret", access: grid.RequireRole("admin")},
	}
	resolver := grid.NewResolver(grid.FinderFunc(func(name string) (grid.Source, bool) {
		src, ok := sources[name]
		return src, ok
	}))

	h := NewHandlers(s, resolver, fakeScripts{"inventory", "orders"}, locale.NewResolver(nil, locale.DefaultStrings()))
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r, s
}

func get(t *testing.T, r http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	return getAs(t, r, target, nil)
}

// getAs issues a GET as user; nil means guest.
func getAs(t *testing.T, r http.Handler, target string, user *auth.User) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if user != nil {
		req = req.WithContext(auth.WithUser(req.Context(), user))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

var (
	root  = &auth.User{Name: "root", Roles: []string{auth.RoleSuperuser}}
	sales = &auth.User{Name: "ann", Roles: []string{"sales"}}
)

func TestDashboard(t *testing.T) {
	r, s := setupTestServer(t)
	if err := s.LogRequest(&store.RequestLog{GridName: "orders", Method: "POST", Path: "/rocktabulator/", StatusCode: 200}); err != nil {
		t.Fatalf("LogRequest failed: %v", err)
	}

	w := get(t, r, "/admin/")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{`/admin/grids/inventory`, `/admin/grids/orders`, "script"} {
		if !strings.Contains(body, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}
	if strings.Contains(body, "data-requests") {
		t.Error("guest dashboard should not show request traffic")
	}

	body = getAs(t, r, "/admin/", root).Body.String()
	if !strings.Contains(body, `<td class="px-6 py-4" data-requests>1</td>`) {
		t.Error("superuser dashboard missing the orders request count")
	}
	if !strings.Contains(body, "Signed in as root") {
		t.Error("superuser dashboard missing the signed-in user")
	}
}

func TestGridPage(t *testing.T) {
	r, _ := setupTestServer(t)

	w := get(t, r, "/admin/grids/orders?lang=2")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		"Bestellungen",
		`data-field="customer"`,
		`data-rowaction="export"`,
		`data-gridaction="refresh"`,
		`data-endpoint="/rocktabulator/"`,
		`data-lang="2"`,
		`de-de`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("grid page missing %q", want)
		}
	}

	if body := get(t, r, "/admin/grids/orders").Body.String(); strings.Contains(body, "data-lang=") {
		t.Error("grid page without lang should let the widget use the user's language")
	}
}

func TestGridPage_AccessDenied(t *testing.T) {
	r, _ := setupTestServer(t)

	w := get(t, r, "/admin/grids/secret")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "NO ACCESS") {
		t.Error("expected access error on the page")
	}
}

func TestGridPage_UnknownGrid(t *testing.T) {
	r, _ := setupTestServer(t)

	w := get(t, r, "/admin/grids/missing")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestConfig(t *testing.T) {
	r, _ := setupTestServer(t)

	tests := []struct {
		name       string
		target     string
		wantLocale string
	}{
		{"guest default", "/admin/config.json", "en-gb"},
		{"explicit de", "/admin/config.json?lang=2", "de-de"},
		{"unknown id falls back", "/admin/config.json?lang=99", "en-gb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, r, tt.target)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			var cfg locale.Config
			if err := json.NewDecoder(w.Body).Decode(&cfg); err != nil {
				t.Fatalf("failed to decode config: %v", err)
			}
			if cfg.Locale != tt.wantLocale {
				t.Errorf("locale = %q, want %q", cfg.Locale, tt.wantLocale)
			}
			if _, ok := cfg.Langs[tt.wantLocale]; !ok {
				t.Errorf("langs missing %q", tt.wantLocale)
			}
		})
	}
}

func TestConfig_InvalidLang(t *testing.T) {
	r, _ := setupTestServer(t)

	w := get(t, r, "/admin/config.json?lang=abc")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"field":"lang"`) {
		t.Errorf("body = %s, want field reference", w.Body.String())
	}
}

func TestLogsList(t *testing.T) {
	r, s := setupTestServer(t)
	for _, l := range []*store.RequestLog{
		{GridName: "orders", Method: "POST", Path: "/rocktabulator/", StatusCode: 200, ResponseBody: `{"data":[]}`},
		{GridName: "secret", Method: "POST", Path: "/rocktabulator/", StatusCode: 200},
		{GridName: "orders", Action: "export", Method: "POST", Path: "/rocktabulator/", StatusCode: 200, Error: "You are not allowed to execute this rowaction"},
	} {
		if err := s.LogRequest(l); err != nil {
			t.Fatalf("LogRequest failed: %v", err)
		}
	}

	w := getAs(t, r, "/admin/logs?grid=orders", root)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "orders") {
		t.Error("logs page missing orders entry")
	}
	if strings.Contains(body, "<td class=\"px-4 py-2\">secret</td>") {
		t.Error("logs page should be filtered to the orders grid")
	}
	if !strings.Contains(body, "&#34;data&#34;: []") {
		t.Error("response body should be pretty printed")
	}

	w = getAs(t, r, "/admin/logs?grid=orders&failed=1", root)
	body = w.Body.String()
	if !strings.Contains(body, "You are not allowed to execute this rowaction") {
		t.Error("failed-only view missing the denied export")
	}
	if strings.Contains(body, "&#34;data&#34;: []") {
		t.Error("failed-only view should hide successful requests")
	}
}

func TestLogsList_RequiresSuperuser(t *testing.T) {
	r, s := setupTestServer(t)
	if err := s.LogRequest(&store.RequestLog{GridName: "orders", Method: "POST", Path: "/rocktabulator/", StatusCode: 200, ResponseBody: `{"data":[{"customer":"hunter2"}]}`}); err != nil {
		t.Fatalf("LogRequest failed: %v", err)
	}

	tests := []struct {
		name string
		user *auth.User
	}{
		{"guest", nil},
		{"sales user", sales},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := getAs(t, r, "/admin/logs", tt.user)
			if w.Code != http.StatusForbidden {
				t.Errorf("status = %d, want 403", w.Code)
			}
			if strings.Contains(w.Body.String(), "hunter2") {
				t.Error("forbidden response leaked a logged body")
			}
		})
	}
}

func TestRender_LogsTemplateErrors(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	h := NewHandlers(nil, nil, nil, nil)
	h.render(httptest.NewRecorder(), "missing", nil)

	if !strings.Contains(buf.String(), `admin: failed to render missing page: unknown page "missing"`) {
		t.Errorf("log = %q, want the render failure", buf.String())
	}
}

func TestPrettyJSON(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"not json", "not json"},
		{`{"a":1}`, "{\n  \"a\": 1\n}"},
	}
	for _, tt := range tests {
		if got := prettyJSON(tt.in); got != tt.want {
			t.Errorf("prettyJSON(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
