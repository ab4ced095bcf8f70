// ABOUTME: Intercepts unroutable grid AJAX requests and answers them with JSON.
// ABOUTME: Every other request falls through to the host's not-found handler.

package tabulator

import (
	"log"
	"net/http"
	"path"
	"strconv"

	"github.com/2389/tabulator/internal/auth"
	"github.com/2389/tabulator/internal/grid"
	"github.com/2389/tabulator/internal/locale"
	"github.com/2389/tabulator/internal/logging"
	"github.com/2389/tabulator/internal/response"
)

// SentinelPath is the only path grid requests are answered on.
const SentinelPath = "/rocktabulator/"

// Request fields.
const (
	FieldName       = "name"
	FieldLang       = "lang"
	FieldRowAction  = "rowaction"
	FieldGridAction = "gridaction"
)

// maxFormBytes caps the parsed request body.
const maxFormBytes = 1 << 20

// LanguageStore looks up host languages. Both methods return nil when the
// language does not exist.
type LanguageStore interface {
	GetLanguage(id int64) (*locale.Language, error)
	GetLanguageByName(name string) (*locale.Language, error)
}

// Handler answers grid AJAX requests.
type Handler struct {
	grids     *grid.Resolver
	languages LanguageStore
	locales   *locale.Resolver
	fallback  http.Handler
}

// NewHandler creates the interceptor. A nil fallback uses http.NotFound;
// nil languages disables language resolution.
func NewHandler(grids *grid.Resolver, languages LanguageStore, locales *locale.Resolver, fallback http.Handler) *Handler {
	if grids == nil {
		grids = grid.NewResolver(nil)
	}
	if locales == nil {
		locales = locale.NewResolver(nil, nil)
	}
	if fallback == nil {
		fallback = http.HandlerFunc(http.NotFound)
	}
	return &Handler{grids: grids, languages: languages, locales: locales, fallback: fallback}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !IsAjax(r) || normalizePath(r.URL.Path) != SentinelPath {
		h.fallback.ServeHTTP(w, r)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		log.Printf("tabulator: failed to parse form: %v", err)
	}

	name := r.PostForm.Get(FieldName)
	if name == "" {
		h.fallback.ServeHTTP(w, r)
		return
	}

	req := &grid.Request{
		Name:       name,
		User:       auth.UserFromContext(r.Context()),
		RowAction:  r.URL.Query().Get(FieldRowAction),
		GridAction: r.PostForm.Get(FieldGridAction),
		Params:     r.Form,
	}
	req.Language = h.language(req.User, r.PostForm.Get(FieldLang))
	req.Locale = h.locales.Locale(req.Language)

	data := h.Dispatch(r.Context(), req)
	logging.Record(r.Context(), outcome(req, data))
	response.Write(w, r, data)
}

// outcome summarizes a dispatch result for the request log.
func outcome(req *grid.Request, data any) logging.Outcome {
	o := logging.Outcome{Grid: req.Name, Action: req.RowAction}
	if o.Action == "" {
		o.Action = req.GridAction
	}
	if m, ok := data.(map[string]any); ok {
		if msg, ok := m["error"].(string); ok {
			o.Error = msg
		}
	}
	return o
}

// IsAjax reports whether r was sent by a script rather than by navigation.
func IsAjax(r *http.Request) bool {
	return r.Header.Get("X-Requested-With") == "XMLHttpRequest"
}

// normalizePath cleans p and gives it a trailing slash.
func normalizePath(p string) string {
	p = path.Clean("/" + p)
	if p != "/" {
		p += "/"
	}
	return p
}

// language picks the effective language for one request.
func (h *Handler) language(user *auth.User, lang string) *locale.Language {
	return ResolveLanguage(h.languages, user, lang)
}

// ResolveLanguage picks a request's effective language: the requested lang
// id when it exists, else the user's own, else the "default" language.
func ResolveLanguage(languages LanguageStore, user *auth.User, lang string) *locale.Language {
	if languages == nil {
		return nil
	}
	if id, err := strconv.ParseInt(lang, 10, 64); err == nil && id > 0 {
		if l := lookupLanguage(languages, id); l != nil {
			return l
		}
	}
	if user != nil && user.LanguageID > 0 {
		if l := lookupLanguage(languages, user.LanguageID); l != nil {
			return l
		}
	}
	l, err := languages.GetLanguageByName("default")
	if err != nil {
		log.Printf("tabulator: failed to load default language: %v", err)
		return nil
	}
	return l
}

func lookupLanguage(languages LanguageStore, id int64) *locale.Language {
	l, err := languages.GetLanguage(id)
	if err != nil {
		log.Printf("tabulator: failed to load language %d: %v", id, err)
		return nil
	}
	return l
}
