package handlers

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/soillink/soillink/internal/cache"
	"github.com/soillink/soillink/internal/logger"
	"github.com/soillink/soillink/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// DefaultPageTTL is how long an anonymous page stays in the page cache.
const DefaultPageTTL = 10 * time.Minute

var pageTitles = map[string]string{
	"index":     "SoilLink - Quality Agricultural Soil Analysis",
	"about":     "About Us - SoilLink",
	"contact":   "Contact Us - SoilLink",
	"login":     "Login - SoilLink",
	"register":  "Register - SoilLink",
	"dashboard": "Dashboard - SoilLink",
}

type pageData struct {
	Title  string
	Flash  string
	UserID string
	Owner  string
	Year   int
}

// PageHandler renders the HTML pages. Anonymous renders without a flash
// message are kept in the page cache.
type PageHandler struct {
	templates map[string]*template.Template
	cache     cache.PageCache
	sessions  *session.Manager
	ttl       time.Duration
}

func NewPageHandler(pc cache.PageCache, sessions *session.Manager, ttl time.Duration) (*PageHandler, error) {
	if ttl <= 0 {
		ttl = DefaultPageTTL
	}
	h := &PageHandler{templates: make(map[string]*template.Template), cache: pc, sessions: sessions, ttl: ttl}
	for name := range pageTitles {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse page %s: %w", name, err)
		}
		h.templates[name] = t
	}
	return h, nil
}

// Page returns the handler for a static page.
func (h *PageHandler) Page(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := h.data(w, r, name)
		cacheable := data.UserID == "" && data.Flash == ""
		key := "page:" + name

		if cacheable {
			if body, ok := h.cache.Get(key); ok {
				w.Header().Set("X-Cache", "HIT")
				writeHTML(w, body)
				return
			}
		}
		body, err := h.render(name, data)
		if err != nil {
			logger.ErrorContext(r.Context(), "page render failed", "page", name, "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if cacheable {
			h.cache.Set(key, body, h.ttl)
			w.Header().Set("X-Cache", "MISS")
		}
		writeHTML(w, body)
	}
}

// Dashboard renders the dashboard shell for {uid}. Users opening someone
// else's dashboard are sent to their own.
// GET /dashboard/{uid}
func (h *PageHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	rec := session.FromContext(r.Context())
	uid := mux.Vars(r)["uid"]
	if !rec.Authenticated() {
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	}
	if rec.UserID != uid && !rec.IsAdmin() {
		http.Redirect(w, r, "/dashboard/"+rec.UserID, http.StatusSeeOther)
		return
	}
	data := h.data(w, r, "dashboard")
	data.Owner = uid
	body, err := h.render("dashboard", data)
	if err != nil {
		logger.ErrorContext(r.Context(), "page render failed", "page", "dashboard", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	noStore(w)
	writeHTML(w, body)
}

func (h *PageHandler) data(w http.ResponseWriter, r *http.Request, name string) pageData {
	d := pageData{Title: pageTitles[name], Year: time.Now().Year()}
	if rec := session.FromContext(r.Context()); rec.Authenticated() {
		d.UserID = rec.UserID
	}
	if h.sessions != nil {
		d.Flash = h.sessions.PopFlash(w, r)
	}
	return d
}

func (h *PageHandler) render(name string, data pageData) ([]byte, error) {
	t, ok := h.templates[name]
	if !ok {
		return nil, fmt.Errorf("unknown page %q", name)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeHTML(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
