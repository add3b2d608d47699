// Package web serves the server-rendered pages: landing, sign in, feed,
// profile, friends and journal.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/npezzotti/go-echoes/internal/account"
	"github.com/npezzotti/go-echoes/internal/feed"
	"github.com/npezzotti/go-echoes/internal/friends"
	"github.com/npezzotti/go-echoes/internal/identity"
	"github.com/npezzotti/go-echoes/internal/journal"
	"github.com/npezzotti/go-echoes/internal/profile"
	"github.com/npezzotti/go-echoes/internal/ratelimit"
	"github.com/npezzotti/go-echoes/internal/types"
	"go.uber.org/zap"
)

//go:embed templates
var templateFS embed.FS

type Services struct {
	Accounts *account.Service
	Identity *identity.Manager
	Friends  *friends.Store
	Feed     *feed.Feed
	Journal  *journal.Journal
	Profile  *profile.Aggregator
}

type Shell struct {
	log       *zap.SugaredLogger
	svc       Services
	limiter   *ratelimit.Limiter
	templates map[string]*template.Template
	now       func() time.Time
}

// pageData is handed to every template. Page holds the view specific
// payload, Form the values of a rejected submission and FieldErrors the
// validation message per form field.
type pageData struct {
	Title       string
	RotatingId  string
	Error       string
	ErrorCode   string
	Notice      string
	Email       string
	Form        url.Values
	FieldErrors map[string]string
	Page        any
}

var funcs = template.FuncMap{
	"ago": func(t time.Time) string {
		d := time.Since(t).Round(time.Minute)
		switch {
		case d < time.Minute:
			return "just now"
		case d < time.Hour:
			return fmt.Sprintf("%dm ago", int(d.Minutes()))
		default:
			return fmt.Sprintf("%dh ago", int(d.Hours()))
		}
	},
	"moodName": types.MoodName,
	"moods":    func() []string { return types.Moods },
	"colors":   func() []string { return types.BackgroundColors },
	"pages": func(n int) []int {
		p := make([]int, n)
		for i := range p {
			p[i] = i + 1
		}
		return p
	},
}

func NewTemplateCache() (map[string]*template.Template, error) {
	tmplCache := make(map[string]*template.Template)

	pages, err := fs.Glob(templateFS, "templates/pages/*.tmpl")
	if err != nil {
		return nil, err
	}

	for _, page := range pages {
		name := path.Base(page)
		ts, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/base.html.tmpl", page)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}

		tmplCache[name] = ts
	}

	return tmplCache, nil
}

// NewShell registers the pages on mux. limiter is shared with the JSON API
// so sign in attempts through either surface draw from one budget.
func NewShell(mux *http.ServeMux, logger *zap.SugaredLogger, svc Services, limiter *ratelimit.Limiter) (*Shell, error) {
	tc, err := NewTemplateCache()
	if err != nil {
		return nil, err
	}

	sh := &Shell{
		log:       logger,
		svc:       svc,
		limiter:   limiter,
		templates: tc,
		now:       func() time.Time { return time.Now().UTC() },
	}

	mux.HandleFunc("GET /{$}", sh.anonymousOnly(sh.landing))
	mux.HandleFunc("GET /auth", sh.anonymousOnly(sh.authPage))
	mux.HandleFunc("POST /auth/login", sh.throttle(sh.login))
	mux.HandleFunc("POST /auth/signup", sh.throttle(sh.signup))
	mux.HandleFunc("POST /auth/reset", sh.throttle(sh.reset))
	mux.HandleFunc("POST /auth/logout", sh.logout)

	mux.HandleFunc("GET /home", sh.requireAuth(sh.show(homeView)))
	mux.HandleFunc("POST /home", sh.requireAuth(sh.postEcho))

	mux.HandleFunc("GET /profile", sh.requireAuth(sh.show(profileView)))
	mux.HandleFunc("POST /profile/rotate", sh.requireAuth(sh.rotate))
	mux.HandleFunc("POST /profile/settings", sh.requireAuth(sh.settings))

	mux.HandleFunc("GET /friends", sh.requireAuth(sh.show(friendsView)))
	mux.HandleFunc("POST /friends", sh.requireAuth(sh.addFriend))
	mux.HandleFunc("POST /friends/{id}/remove", sh.requireAuth(sh.removeFriend))

	mux.HandleFunc("GET /journal", sh.requireAuth(sh.show(journalView)))
	mux.HandleFunc("POST /journal", sh.requireAuth(sh.saveVibe))
	mux.HandleFunc("POST /journal/{id}/delete", sh.requireAuth(sh.deleteVibe))

	return sh, nil
}

func (sh *Shell) render(w http.ResponseWriter, status int, tmplName string, data pageData) {
	tmpl, ok := sh.templates[tmplName]
	if !ok {
		sh.log.Errorw("render", "error", fmt.Errorf("template %q not in cache", tmplName))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		sh.log.Errorw("render", "template", tmplName, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
