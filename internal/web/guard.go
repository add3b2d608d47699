package web

import (
	"net/http"

	"github.com/npezzotti/go-echoes/internal/account"
	"github.com/npezzotti/go-echoes/internal/api"
	"github.com/npezzotti/go-echoes/internal/ratelimit"
)

type authedHandler func(w http.ResponseWriter, r *http.Request, accountId string)

// accountId returns the account carried by a valid session cookie.
func (sh *Shell) accountId(r *http.Request) (string, bool) {
	c, err := r.Cookie(account.SessionCookieName)
	if err != nil {
		return "", false
	}

	id, err := sh.svc.Accounts.VerifySessionToken(c.Value)
	if err != nil {
		sh.log.Debugw("ignoring session cookie", "error", err)
		return "", false
	}

	return id, true
}

// requireAuth sends anonymous visitors to the sign in page.
func (sh *Shell) requireAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := sh.accountId(r)
		if !ok {
			http.Redirect(w, r, "/auth", http.StatusSeeOther)
			return
		}

		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
		next(w, r, id)
	}
}

// anonymousOnly sends signed in visitors to their feed.
func (sh *Shell) anonymousOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := sh.accountId(r); ok {
			http.Redirect(w, r, "/home", http.StatusSeeOther)
			return
		}

		next(w, r)
	}
}

// throttle limits credential form submissions per client address.
func (sh *Shell) throttle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !sh.limiter.AllowRequest(r) {
			sh.log.Warnw("rate limit exceeded", "ip", ratelimit.ClientIP(r), "path", r.URL.Path)
			errResp := api.NewTooManyRequestsError()
			w.Header().Set("Retry-After", "1")
			sh.render(w, errResp.StatusCode, "auth.html.tmpl", pageData{
				Title: "Sign in",
				Email: r.PostFormValue("email"),
				Error: "too many attempts, try again shortly",
			})
			return
		}

		next(w, r)
	}
}
