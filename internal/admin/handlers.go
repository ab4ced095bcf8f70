// ABOUTME: HTTP handlers for the admin UI.
// ABOUTME: Serves the grid dashboard, widget bootstrap pages, locale config and request logs.

package admin

import (
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/2389/tabulator/internal/auth"
	apperrors "github.com/2389/tabulator/internal/errors"
	"github.com/2389/tabulator/internal/grid"
	"github.com/2389/tabulator/internal/locale"
	"github.com/2389/tabulator/internal/store"
	"github.com/2389/tabulator/internal/tabulator"
	"github.com/go-chi/chi/v5"
)

// ScriptLister lists script-defined grids.
type ScriptLister interface {
	Names() ([]string, error)
}

type Handlers struct {
	store   *store.Store
	grids   *grid.Resolver
	scripts ScriptLister
	locales *locale.Resolver
}

// NewHandlers creates the admin handlers. scripts may be nil.
func NewHandlers(s *store.Store, grids *grid.Resolver, scripts ScriptLister, locales *locale.Resolver) *Handlers {
	if locales == nil {
		locales = locale.NewResolver(nil, nil)
	}
	return &Handlers{store: s, grids: grids, scripts: scripts, locales: locales}
}

func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Get("/", h.dashboard)
		r.Get("/grids/{name}", h.gridPage)
		r.Get("/config.json", h.config)
		r.With(auth.RequireRole(auth.RoleSuperuser)).Get("/logs", h.logsList)
	})
}

// GridDashboardData represents one grid on the dashboard
type GridDashboardData struct {
	Name         string
	Kind         string
	RequestCount int
	ErrorRate    float64
}

// dashboard lists the grids. Traffic numbers come from the request log and
// are shown to superusers only.
func (h *Handlers) dashboard(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	traffic := h.store != nil && user.HasRole(auth.RoleSuperuser)
	h.render(w, "dashboard", map[string]any{
		"Grids":       h.gridDashboardData(traffic),
		"User":        user,
		"ShowTraffic": traffic,
	})
}

func (h *Handlers) render(w http.ResponseWriter, page string, data any) {
	w.Header().Set("Content-Type", "text/html")
	if err := renderPage(w, page, data); err != nil {
		log.Printf("admin: failed to render %s page: %v", page, err)
	}
}

// gridDashboardData collects registered and script grids, with their
// traffic over the last 24 hours when traffic is set.
func (h *Handlers) gridDashboardData(traffic bool) []GridDashboardData {
	kinds := make(map[string]string)
	for _, name := range grid.Names() {
		kinds[name] = "built-in"
	}
	if h.scripts != nil {
		names, err := h.scripts.Names()
		if err != nil {
			log.Printf("admin: failed to list grid scripts: %v", err)
		}
		for _, name := range names {
			if _, exists := kinds[name]; !exists {
				kinds[name] = "script"
			}
		}
	}

	names := make([]string, 0, len(kinds))
	for name := range kinds {
		names = append(names, name)
	}
	sort.Strings(names)

	yesterday := time.Now().Add(-24 * time.Hour)
	data := make([]GridDashboardData, 0, len(names))
	for _, name := range names {
		d := GridDashboardData{Name: name, Kind: kinds[name]}
		if traffic {
			d.RequestCount, _ = h.store.GetGridRequestCount(name, yesterday)
			d.ErrorRate, _ = h.store.GetGridErrorRate(name, yesterday)
		}
		data = append(data, d)
	}
	return data
}

// languageFor resolves the effective language of an admin request.
func (h *Handlers) languageFor(r *http.Request) *locale.Language {
	var languages tabulator.LanguageStore
	if h.store != nil {
		languages = h.store
	}
	return tabulator.ResolveLanguage(languages, auth.UserFromContext(r.Context()), r.URL.Query().Get("lang"))
}

// gridPage renders the widget bootstrap page for one grid. The grid is
// resolved without rows to show its columns and actions.
func (h *Handlers) gridPage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	lang := h.languageFor(r)

	req := &grid.Request{
		Name:     name,
		User:     auth.UserFromContext(r.Context()),
		Language: lang,
		Locale:   h.locales.Locale(lang),
		Params:   r.URL.Query(),
	}

	data := map[string]any{
		"Name":     name,
		"Endpoint": tabulator.SentinelPath,
		"Config":   h.locales.Config(lang),
		"Language": lang,
	}
	// The widget asks for data in the language the page was rendered in.
	if id, err := strconv.ParseInt(r.URL.Query().Get("lang"), 10, 64); err == nil {
		data["Lang"] = id
	}

	d, err := h.grids.Resolve(r.Context(), req, false)
	if err != nil {
		if apperrors.Is(err, apperrors.KindNotFound) {
			http.NotFound(w, r)
			return
		}
		data["Error"] = err.Error()
	} else {
		payload, err := d.JSONObject(r.Context(), req)
		if err != nil {
			data["Error"] = err.Error()
		} else {
			data["Grid"] = payload
		}
	}

	h.render(w, "grid", data)
}

// config returns the locale bootstrap blob for the caller's language.
func (h *Handlers) config(w http.ResponseWriter, r *http.Request) {
	if lang := r.URL.Query().Get("lang"); lang != "" {
		if _, err := strconv.ParseInt(lang, 10, 64); err != nil {
			apperrors.WriteErrorWithField(w, http.StatusBadRequest, apperrors.ErrInvalidRequest, "lang must be numeric", "lang")
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.locales.Config(h.languageFor(r)))
}

// logsList shows the request log. Mounted behind auth.RequireRole.
func (h *Handlers) logsList(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		apperrors.WriteError(w, http.StatusServiceUnavailable, apperrors.ErrDatabaseError, "Request logging is disabled")
		return
	}

	q := r.URL.Query()
	statusCode, _ := strconv.Atoi(q.Get("status"))
	query := &store.RequestLogQuery{
		Limit:      100,
		GridName:   q.Get("grid"),
		Action:     q.Get("action"),
		Method:     q.Get("method"),
		PathPrefix: q.Get("path"),
		StatusCode: statusCode,
		FailedOnly: q.Get("failed") == "1",
	}

	logs, err := h.store.GetRequestLogs(query)
	if err != nil {
		apperrors.WriteError(w, http.StatusInternalServerError, apperrors.ErrDatabaseError, err.Error())
		return
	}

	// Pretty-print JSON in request/response bodies
	for _, l := range logs {
		l.RequestBody = prettyJSON(l.RequestBody)
		l.ResponseBody = prettyJSON(l.ResponseBody)
	}

	stats, err := h.store.GetRequestLogStats()
	if err != nil {
		apperrors.WriteError(w, http.StatusInternalServerError, apperrors.ErrDatabaseError, err.Error())
		return
	}

	topEndpoints, err := h.store.GetTopEndpoints(10)
	if err != nil {
		apperrors.WriteError(w, http.StatusInternalServerError, apperrors.ErrDatabaseError, err.Error())
		return
	}

	h.render(w, "logs", map[string]any{
		"Logs":         logs,
		"Stats":        stats,
		"TopEndpoints": topEndpoints,
		"GridNames":    grid.Names(),
		"SelectedGrid": query.GridName,
		"FailedOnly":   query.FailedOnly,
	})
}

// prettyJSON formats JSON with indentation, or returns original string if not valid JSON
func prettyJSON(s string) string {
	if s == "" {
		return s
	}
	var obj any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return s // Not valid JSON, return as-is
	}
	formatted, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return s
	}
	return string(formatted)
}
