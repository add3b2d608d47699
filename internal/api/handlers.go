package api

import (
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-echoes/internal/account"
	"github.com/npezzotti/go-echoes/internal/apperr"
	"github.com/npezzotti/go-echoes/internal/feed"
	"github.com/npezzotti/go-echoes/internal/journal"
	"github.com/npezzotti/go-echoes/internal/server"
	"github.com/npezzotti/go-echoes/internal/types"
)

type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ResetPasswordRequest struct {
	Email string `json:"email"`
}

type ConfirmResetRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type SettingsRequest struct {
	AutoRotate *bool `json:"auto_rotate"`
}

type AddFriendRequest struct {
	RotatingId string `json:"rotating_id"`
}

type SaveVibeResponse struct {
	Vibe types.Vibe  `json:"vibe"`
	Echo *types.Echo `json:"echo,omitempty"`
}

func (s *EchoesApp) writeJson(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Errorw("json encode", "error", err)
	}
}

func (s *EchoesApp) writeError(w http.ResponseWriter, err error) {
	errResp := NewApiError(err)
	if errResp.StatusCode >= http.StatusInternalServerError {
		s.log.Errorw("request failed", "error", err)
	}

	s.writeJson(w, errResp.StatusCode, errResp)
}

// decodeJson reads the request body into v, writing a bad request error
// when it cannot be parsed.
func (s *EchoesApp) decodeJson(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return false
	}

	return true
}

// requireAccountId returns the account id set by authMiddleware.
func (s *EchoesApp) requireAccountId(w http.ResponseWriter, r *http.Request) (string, bool) {
	accountId, ok := AccountId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
	}

	return accountId, ok
}

func (s *EchoesApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		s.log.Errorw("health check failed", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *EchoesApp) signup(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !s.decodeJson(w, r, &req) {
		return
	}

	acc, token, err := s.svc.Accounts.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}

	http.SetCookie(w, account.SessionCookie(token))
	s.writeJson(w, http.StatusCreated, acc)
}

func (s *EchoesApp) login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !s.decodeJson(w, r, &req) {
		return
	}

	acc, token, err := s.svc.Accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}

	http.SetCookie(w, account.SessionCookie(token))
	s.writeJson(w, http.StatusOK, acc)
}

func (s *EchoesApp) logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, s.svc.Accounts.Logout())
	w.WriteHeader(http.StatusNoContent)
}

func (s *EchoesApp) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !s.decodeJson(w, r, &req) {
		return
	}

	if err := s.svc.Accounts.ResetPassword(r.Context(), req.Email); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (s *EchoesApp) confirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req ConfirmResetRequest
	if !s.decodeJson(w, r, &req) {
		return
	}

	acc, err := s.svc.Accounts.ConfirmPasswordReset(r.Context(), req.Token, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, acc)
}

func (s *EchoesApp) session(w http.ResponseWriter, r *http.Request) {
	accountId, ok := s.requireAccountId(w, r)
	if !ok {
		return
	}

	state, err := s.svc.Accounts.Session(r.Context(), accountId)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindCredential {
			http.SetCookie(w, account.ExpiredSessionCookie())
		}
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, state)
}

func (s *EchoesApp) getProfile(w http.ResponseWriter, r *http.Request) {
	accountId, ok := s.requireAccountId(w, r)
	if !ok {
		return
	}

	p, err := s.svc.Identity.Ensure(r.Context(), accountId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, p)
}

func (s *EchoesApp) rotateId(w http.ResponseWriter, r *http.Request) {
	accountId, ok := s.requireAccountId(w, r)
	if !ok {
		return
	}

	p, err := s.svc.Identity.Rotate(r.Context(), accountId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, p)
}

func (s *EchoesApp) updateSettings(w http.ResponseWriter, r *http.Request) {
	accountId, ok := s.requireAccountId(w, r)
	if !ok {
		return
	}

	var req SettingsRequest
	if !s.decodeJson(w, r, &req) {
		return
	}

	if req.AutoRotate == nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	p, err := s.svc.Identity.SetAutoRotate(r.Context(), accountId, *req.AutoRotate)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, p)
}

func (s *EchoesApp) getStats(w http.ResponseWriter, r *http.Request) {
	accountId, ok := s.requireAccountId(w, r)
	if !ok {
		return
	}

	st, err := s.svc.Profile.ComputeStats(r.Context(), accountId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, st)
}

func (s *EchoesApp) listFriends(w http.ResponseWriter, r *http.Request) {
	accountId, ok := s.requireAccountId(w, r)
	if !ok {
		return
	}

	friends, err := s.svc.Friends.ListFriends(r.Context(), accountId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, friends)
}

func (s *EchoesApp) addFriend(w http.ResponseWriter, r *http.Request) {
	accountId, ok := s.requireAccountId(w, r)
	if !ok {
		return
	}

	var req AddFriendRequest
	if !s.decodeJson(w, r, &req) {
		return
	}

	friend, err := s.svc.Friends.AddFriend(r.Context(), accountId, req.RotatingId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, friend)
}

func (s *EchoesApp) removeFriend(w http.ResponseWriter, r *http.Request) {
	accountId, ok := s.requireAccountId(w, r)
	if !ok {
		return
	}

	if err := s.svc.Friends.RemoveFriend(r.Context(), accountId, r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *EchoesApp) getEchoes(w http.ResponseWriter, r *http.Request) {
	page := 1
	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		var err error
		page, err = strconv.Atoi(pageStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	since := feed.WindowStart(s.now())
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		var err error
		since, err = time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	echoes, err := s.svc.Feed.Window(r.Context(), since)
	if err != nil {
		s.writeError(w, err)
		return
	}

	result, err := feed.Paginate(echoes, page)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, result)
}

func (s *EchoesApp) postEcho(w http.ResponseWriter, r *http.Request) {
	accountId, ok := s.requireAccountId(w, r)
	if !ok {
		return
	}

	var params feed.PostParams
	if !s.decodeJson(w, r, &params) {
		return
	}

	echo, err := s.svc.Feed.Post(r.Context(), accountId, params)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, echo)
}

func (s *EchoesApp) listVibes(w http.ResponseWriter, r *http.Request) {
	accountId, ok := s.requireAccountId(w, r)
	if !ok {
		return
	}

	vibes, err := s.svc.Journal.List(r.Context(), accountId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, vibes)
}

func (s *EchoesApp) saveVibe(w http.ResponseWriter, r *http.Request) {
	accountId, ok := s.requireAccountId(w, r)
	if !ok {
		return
	}

	var params journal.SaveParams
	if !s.decodeJson(w, r, &params) {
		return
	}

	vibe, echo, err := s.svc.Journal.Save(r.Context(), accountId, params)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, SaveVibeResponse{Vibe: vibe, Echo: echo})
}

func (s *EchoesApp) deleteVibe(w http.ResponseWriter, r *http.Request) {
	accountId, ok := s.requireAccountId(w, r)
	if !ok {
		return
	}

	if err := s.svc.Journal.Delete(r.Context(), accountId, r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *EchoesApp) serveWs(w http.ResponseWriter, r *http.Request) {
	accountId, ok := s.requireAccountId(w, r)
	if !ok {
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("error upgrading connection", "error", err)
		return
	}

	client := server.NewClient(accountId, conn, s.hub, s.log, s.stats)

	s.hub.RegisterClient(client)
	go client.Write()
	go client.Read()
}
