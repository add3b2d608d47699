package api

import (
	"fmt"
	"net/http"

	"github.com/npezzotti/go-echoes/internal/account"
	"github.com/npezzotti/go-echoes/internal/ratelimit"
)

func (s *EchoesApp) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				var panicError error
				switch e := err.(type) {
				case error:
					panicError = e
				default:
					panicError = fmt.Errorf("%v", e)
				}
				s.log.Errorw("panic", "error", panicError, "path", r.URL.Path)
				errResp := NewInternalServerError(panicError)
				w.Header().Set("Connection", "close")
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func (s *EchoesApp) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenCookie, err := r.Cookie(account.SessionCookieName)
		if err != nil {
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		accountId, err := s.svc.Accounts.VerifySessionToken(tokenCookie.Value)
		if err != nil {
			s.log.Debugw("failed to extract account id from token", "error", err)
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		ctx := WithAccountId(r.Context(), accountId)
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")

		next(w, r.WithContext(ctx))
	}
}

// rateLimit throttles unauthenticated credential endpoints per client
// address.
func (s *EchoesApp) rateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := ratelimit.ClientIP(r)
		if !s.limiter.Allow(ip) {
			s.log.Warnw("rate limit exceeded", "ip", ip, "path", r.URL.Path)
			errResp := NewTooManyRequestsError()
			w.Header().Set("Retry-After", "1")
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		next(w, r)
	}
}
