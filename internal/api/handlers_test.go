package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-echoes/internal/account"
	"github.com/npezzotti/go-echoes/internal/apperr"
	"github.com/npezzotti/go-echoes/internal/config"
	"github.com/npezzotti/go-echoes/internal/database"
	"github.com/npezzotti/go-echoes/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func mustHash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(v))
	return &buf
}

func withAccount(r *http.Request, accountId string) *http.Request {
	return r.WithContext(WithAccountId(r.Context(), accountId))
}

func decodeApiError(t *testing.T, rr *httptest.ResponseRecorder) ApiError {
	t.Helper()
	var errResp ApiError
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&errResp))
	return errResp
}

func sessionCookie(rr *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == account.SessionCookieName {
			return c
		}
	}
	return nil
}

func expectProfile(db *database.MockEchoesRepository, accountId, rotatingId string) {
	db.On("GetProfile", mock.Anything, accountId).
		Return(database.Profile{AccountId: accountId, RotatingId: rotatingId, LastRotated: fixedNow}, nil).Maybe()
}

func TestHealthCheck(t *testing.T) {
	tcases := []struct {
		name    string
		pingErr error
		status  int
		body    string
	}{
		{name: "healthy", status: http.StatusOK, body: "OK"},
		{name: "store unavailable", pingErr: errors.New("db down"), status: http.StatusInternalServerError},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockEchoesRepository{}
			db.On("Ping", mock.Anything).Return(tc.pingErr)
			app, _ := newTestApp(t, db, nil)

			rr := httptest.NewRecorder()
			app.healthCheck(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			assert.Equal(t, tc.status, rr.Code)
			assert.Equal(t, tc.body, rr.Body.String())
		})
	}
}

func TestSignup(t *testing.T) {
	t.Run("creates account and sets cookie", func(t *testing.T) {
		db := &database.MockEchoesRepository{}
		defer db.AssertExpectations(t)
		db.On("CreateAccount", mock.Anything, mock.MatchedBy(func(p database.CreateAccountParams) bool {
			return p.EmailAddress == "new@example.com"
		})).Return(database.Account{Id: "acc-1", EmailAddress: "new@example.com"}, nil)
		db.On("UpsertRotatingId", mock.Anything, "acc-1", mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).
			Return(database.Profile{AccountId: "acc-1", RotatingId: "Echo5"}, nil)

		app, _ := newTestApp(t, db, nil)
		req := httptest.NewRequest(http.MethodPost, "/api/auth/signup",
			jsonBody(t, CredentialsRequest{Email: "new@example.com", Password: "secret1"}))
		rr := httptest.NewRecorder()
		app.signup(rr, req)

		require.Equal(t, http.StatusCreated, rr.Code)
		var acc types.Account
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&acc))
		assert.Equal(t, "acc-1", acc.Id)
		assert.Equal(t, "new@example.com", acc.Email)

		cookie := sessionCookie(rr)
		require.NotNil(t, cookie, "expected session cookie")
		accountId, err := app.svc.Accounts.VerifySessionToken(cookie.Value)
		require.NoError(t, err)
		assert.Equal(t, "acc-1", accountId)
	})

	t.Run("invalid json", func(t *testing.T) {
		app, _ := newTestApp(t, &database.MockEchoesRepository{}, nil)
		rr := httptest.NewRecorder()
		app.signup(rr, httptest.NewRequest(http.MethodPost, "/api/auth/signup", strings.NewReader("{")))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("weak password", func(t *testing.T) {
		db := &database.MockEchoesRepository{}
		app, _ := newTestApp(t, db, nil)
		rr := httptest.NewRecorder()
		app.signup(rr, httptest.NewRequest(http.MethodPost, "/api/auth/signup",
			jsonBody(t, CredentialsRequest{Email: "new@example.com", Password: "123"})))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, apperr.CodeWeakPassword, decodeApiError(t, rr).Code)
		db.AssertNotCalled(t, "CreateAccount", mock.Anything, mock.Anything)
	})

	t.Run("password longer than bcrypt accepts", func(t *testing.T) {
		db := &database.MockEchoesRepository{}
		app, _ := newTestApp(t, db, nil)
		rr := httptest.NewRecorder()
		app.signup(rr, httptest.NewRequest(http.MethodPost, "/api/auth/signup",
			jsonBody(t, CredentialsRequest{Email: "long@example.com", Password: strings.Repeat("p", 80)})))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, apperr.CodePasswordTooLong, decodeApiError(t, rr).Code)
		db.AssertNotCalled(t, "CreateAccount", mock.Anything, mock.Anything)
	})

	t.Run("email in use", func(t *testing.T) {
		db := &database.MockEchoesRepository{}
		db.On("CreateAccount", mock.Anything, mock.Anything).Return(database.Account{}, database.ErrDuplicate)

		app, _ := newTestApp(t, db, nil)
		rr := httptest.NewRecorder()
		app.signup(rr, httptest.NewRequest(http.MethodPost, "/api/auth/signup",
			jsonBody(t, CredentialsRequest{Email: "taken@example.com", Password: "secret1"})))

		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.Equal(t, apperr.CodeEmailInUse, decodeApiError(t, rr).Code)
		assert.Nil(t, sessionCookie(rr), "expected no session cookie")
	})
}

func TestLogin(t *testing.T) {
	hash := mustHash(t, "secret1")

	tcases := []struct {
		name     string
		password string
		status   int
	}{
		{name: "valid credentials", password: "secret1", status: http.StatusOK},
		{name: "wrong password", password: "nope", status: http.StatusUnauthorized},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockEchoesRepository{}
			db.On("GetAccountByEmail", mock.Anything, "a@example.com").
				Return(database.Account{Id: "acc-1", EmailAddress: "a@example.com", PasswordHash: hash}, nil)

			app, _ := newTestApp(t, db, nil)
			rr := httptest.NewRecorder()
			app.login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login",
				jsonBody(t, CredentialsRequest{Email: "a@example.com", Password: tc.password})))

			assert.Equal(t, tc.status, rr.Code)
			if tc.status == http.StatusOK {
				assert.NotNil(t, sessionCookie(rr), "expected session cookie")
			} else {
				assert.Equal(t, apperr.CodeInvalidCredential, decodeApiError(t, rr).Code)
			}
		})
	}
}

func TestLogout(t *testing.T) {
	app, _ := newTestApp(t, &database.MockEchoesRepository{}, nil)
	rr := httptest.NewRecorder()
	app.logout(rr, withAccount(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil), "acc-1"))

	assert.Equal(t, http.StatusNoContent, rr.Code)
	cookie := sessionCookie(rr)
	require.NotNil(t, cookie, "expected cookie to be cleared")
	assert.Empty(t, cookie.Value)
	assert.Equal(t, -1, cookie.MaxAge)
}

func TestResetPassword(t *testing.T) {
	t.Run("unknown email", func(t *testing.T) {
		db := &database.MockEchoesRepository{}
		db.On("GetAccountByEmail", mock.Anything, "who@example.com").Return(database.Account{}, database.ErrNotFound)

		app, _ := newTestApp(t, db, nil)
		rr := httptest.NewRecorder()
		app.resetPassword(rr, httptest.NewRequest(http.MethodPost, "/api/auth/reset-password",
			jsonBody(t, ResetPasswordRequest{Email: "who@example.com"})))

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, apperr.CodeUserNotFound, decodeApiError(t, rr).Code)
	})

	t.Run("sends reset", func(t *testing.T) {
		db := &database.MockEchoesRepository{}
		db.On("GetAccountByEmail", mock.Anything, "a@example.com").
			Return(database.Account{Id: "acc-1", EmailAddress: "a@example.com", PasswordHash: "hash"}, nil)

		app, _ := newTestApp(t, db, nil)
		rr := httptest.NewRecorder()
		app.resetPassword(rr, httptest.NewRequest(http.MethodPost, "/api/auth/reset-password",
			jsonBody(t, ResetPasswordRequest{Email: "a@example.com"})))

		assert.Equal(t, http.StatusAccepted, rr.Code)
	})
}

func TestConfirmPasswordReset_InvalidToken(t *testing.T) {
	db := &database.MockEchoesRepository{}
	app, _ := newTestApp(t, db, nil)

	rr := httptest.NewRecorder()
	app.confirmPasswordReset(rr, httptest.NewRequest(http.MethodPost, "/api/auth/reset-password/confirm",
		jsonBody(t, ConfirmResetRequest{Token: "garbage", Password: "secret2"})))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, apperr.CodeInvalidResetToken, decodeApiError(t, rr).Code)
	db.AssertNotCalled(t, "UpdatePassword", mock.Anything, mock.Anything, mock.Anything)
}

func TestSession(t *testing.T) {
	t.Run("resolves account and identifier", func(t *testing.T) {
		db := &database.MockEchoesRepository{}
		db.On("GetAccountById", mock.Anything, "acc-1").
			Return(database.Account{Id: "acc-1", EmailAddress: "a@example.com"}, nil)
		expectProfile(db, "acc-1", "Echo7")

		app, _ := newTestApp(t, db, nil)
		rr := httptest.NewRecorder()
		app.session(rr, withAccount(httptest.NewRequest(http.MethodGet, "/api/auth/session", nil), "acc-1"))

		require.Equal(t, http.StatusOK, rr.Code)
		var state types.SessionState
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&state))
		require.NotNil(t, state.Account)
		assert.Equal(t, "a@example.com", state.Account.Email)
		assert.Equal(t, "Echo7", state.RotatingId)
		assert.False(t, state.Loading)
	})

	t.Run("account no longer exists", func(t *testing.T) {
		db := &database.MockEchoesRepository{}
		db.On("GetAccountById", mock.Anything, "acc-1").Return(database.Account{}, database.ErrNotFound)

		app, _ := newTestApp(t, db, nil)
		rr := httptest.NewRecorder()
		app.session(rr, withAccount(httptest.NewRequest(http.MethodGet, "/api/auth/session", nil), "acc-1"))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		cookie := sessionCookie(rr)
		require.NotNil(t, cookie, "expected session cookie to be cleared")
		assert.Equal(t, -1, cookie.MaxAge)
	})

	t.Run("missing account id", func(t *testing.T) {
		app, _ := newTestApp(t, &database.MockEchoesRepository{}, nil)
		rr := httptest.NewRecorder()
		app.session(rr, httptest.NewRequest(http.MethodGet, "/api/auth/session", nil))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestGetProfile(t *testing.T) {
	db := &database.MockEchoesRepository{}
	db.On("GetProfile", mock.Anything, "acc-1").Return(database.Profile{}, database.ErrNotFound).Once()
	db.On("UpsertRotatingId", mock.Anything, "acc-1", mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).
		Return(database.Profile{AccountId: "acc-1", RotatingId: "Echo9"}, nil).Once()

	app, _ := newTestApp(t, db, nil)
	rr := httptest.NewRecorder()
	app.getProfile(rr, withAccount(httptest.NewRequest(http.MethodGet, "/api/profile", nil), "acc-1"))

	require.Equal(t, http.StatusOK, rr.Code)
	var p types.Profile
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&p))
	assert.Equal(t, "Echo9", p.RotatingId, "expected profile to be created on first read")
}

func TestRotateId(t *testing.T) {
	db := &database.MockEchoesRepository{}
	defer db.AssertExpectations(t)
	db.On("UpsertRotatingId", mock.Anything, "acc-1", mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).
		Return(database.Profile{AccountId: "acc-1", RotatingId: "Echo42"}, nil)

	app, _ := newTestApp(t, db, nil)
	rr := httptest.NewRecorder()
	app.rotateId(rr, withAccount(httptest.NewRequest(http.MethodPost, "/api/profile/rotate", nil), "acc-1"))

	require.Equal(t, http.StatusOK, rr.Code)
	var p types.Profile
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&p))
	assert.Equal(t, "Echo42", p.RotatingId)
}

func TestUpdateSettings(t *testing.T) {
	t.Run("toggles auto rotate", func(t *testing.T) {
		db := &database.MockEchoesRepository{}
		defer db.AssertExpectations(t)
		expectProfile(db, "acc-1", "Echo1")
		db.On("SetAutoRotate", mock.Anything, "acc-1", true).
			Return(database.Profile{AccountId: "acc-1", RotatingId: "Echo1", AutoRotate: true}, nil)

		app, _ := newTestApp(t, db, nil)
		rr := httptest.NewRecorder()
		app.updateSettings(rr, withAccount(httptest.NewRequest(http.MethodPut, "/api/profile/settings",
			strings.NewReader(`{"auto_rotate":true}`)), "acc-1"))

		require.Equal(t, http.StatusOK, rr.Code)
		var p types.Profile
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&p))
		assert.True(t, p.AutoRotate)
	})

	t.Run("missing field", func(t *testing.T) {
		db := &database.MockEchoesRepository{}
		app, _ := newTestApp(t, db, nil)
		rr := httptest.NewRecorder()
		app.updateSettings(rr, withAccount(httptest.NewRequest(http.MethodPut, "/api/profile/settings",
			strings.NewReader(`{}`)), "acc-1"))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		db.AssertNotCalled(t, "SetAutoRotate", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestGetStats(t *testing.T) {
	db := &database.MockEchoesRepository{}
	db.On("CountEchoesByOwner", mock.Anything, "acc-1").Return(3, nil)
	db.On("GetProfile", mock.Anything, "acc-1").Return(database.Profile{AccountId: "acc-1", Friends: []string{"acc-2"}}, nil)
	db.On("CountPrivateVibesByOwner", mock.Anything, "acc-1").Return(1, nil)
	db.On("ListEchoMoodsByOwner", mock.Anything, "acc-1").Return([]string{"😢", "😢", "🎉"}, nil)

	app, _ := newTestApp(t, db, nil)
	rr := httptest.NewRecorder()
	app.getStats(rr, withAccount(httptest.NewRequest(http.MethodGet, "/api/profile/stats", nil), "acc-1"))

	require.Equal(t, http.StatusOK, rr.Code)
	var st types.ProfileStats
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&st))
	assert.Equal(t, types.ProfileStats{
		TotalEchoes:  3,
		TotalFriends: 1,
		PrivateVibes: 1,
		MostUsedMood: "😢",
		MoodName:     types.MoodName("😢"),
	}, st)
}

func TestFriends(t *testing.T) {
	t.Run("add by rotating id", func(t *testing.T) {
		db := &database.MockEchoesRepository{}
		defer db.AssertExpectations(t)
		expectProfile(db, "acc-1", "Echo1")
		db.On("FindProfileByRotatingId", mock.Anything, "Echo2").
			Return(database.Profile{AccountId: "acc-2", RotatingId: "Echo2"}, nil)
		db.On("AddFriend", mock.Anything, "acc-1", "acc-2").Return(nil)

		app, _ := newTestApp(t, db, nil)
		rr := httptest.NewRecorder()
		app.addFriend(rr, withAccount(httptest.NewRequest(http.MethodPost, "/api/friends",
			jsonBody(t, AddFriendRequest{RotatingId: "Echo2"})), "acc-1"))

		require.Equal(t, http.StatusCreated, rr.Code)
		var f types.Friend
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&f))
		assert.Equal(t, types.Friend{Id: "acc-2", RotatingId: "Echo2"}, f)
	})

	t.Run("add self", func(t *testing.T) {
		db := &database.MockEchoesRepository{}
		expectProfile(db, "acc-1", "Echo1")

		app, _ := newTestApp(t, db, nil)
		rr := httptest.NewRecorder()
		app.addFriend(rr, withAccount(httptest.NewRequest(http.MethodPost, "/api/friends",
			jsonBody(t, AddFriendRequest{RotatingId: "Echo1"})), "acc-1"))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, apperr.CodeSelfReference, decodeApiError(t, rr).Code)
	})

	t.Run("add unknown id", func(t *testing.T) {
		db := &database.MockEchoesRepository{}
		expectProfile(db, "acc-1", "Echo1")
		db.On("FindProfileByRotatingId", mock.Anything, "Echo404").Return(database.Profile{}, database.ErrNotFound)

		app, _ := newTestApp(t, db, nil)
		rr := httptest.NewRecorder()
		app.addFriend(rr, withAccount(httptest.NewRequest(http.MethodPost, "/api/friends",
			jsonBody(t, AddFriendRequest{RotatingId: "Echo404"})), "acc-1"))

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, apperr.CodeFriendNotFound, decodeApiError(t, rr).Code)
	})

	t.Run("remove", func(t *testing.T) {
		db := &database.MockEchoesRepository{}
		defer db.AssertExpectations(t)
		db.On("RemoveFriend", mock.Anything, "acc-1", "acc-2").Return(nil)

		app, _ := newTestApp(t, db, nil)
		req := withAccount(httptest.NewRequest(http.MethodDelete, "/api/friends/acc-2", nil), "acc-1")
		req.SetPathValue("id", "acc-2")
		rr := httptest.NewRecorder()
		app.removeFriend(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
	})

	t.Run("list", func(t *testing.T) {
		db := &database.MockEchoesRepository{}
		db.On("GetProfile", mock.Anything, "acc-1").
			Return(database.Profile{AccountId: "acc-1", Friends: []string{"acc-2", "acc-gone"}}, nil)
		db.On("GetProfilesByIds", mock.Anything, []string{"acc-2", "acc-gone"}).
			Return([]database.Profile{{AccountId: "acc-2", RotatingId: "Echo2"}}, nil)

		app, _ := newTestApp(t, db, nil)
		rr := httptest.NewRecorder()
		app.listFriends(rr, withAccount(httptest.NewRequest(http.MethodGet, "/api/friends", nil), "acc-1"))

		require.Equal(t, http.StatusOK, rr.Code)
		var friends []types.Friend
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&friends))
		assert.Equal(t, []types.Friend{{Id: "acc-2", RotatingId: "Echo2"}}, friends)
	})
}

func testEchoes(n int) []database.Echo {
	echoes := make([]database.Echo, n)
	for i := range echoes {
		echoes[i] = database.Echo{
			Id:        string(rune('a' + i)),
			Content:   "hello",
			Timestamp: fixedNow.Add(-time.Duration(i) * time.Minute),
		}
	}
	return echoes
}

func TestGetEchoes(t *testing.T) {
	t.Run("defaults to first page of current window", func(t *testing.T) {
		db := &database.MockEchoesRepository{}
		defer db.AssertExpectations(t)
		db.On("ListEchoesSince", mock.Anything, fixedNow.Add(-24*time.Hour)).Return(testEchoes(8), nil)

		app, _ := newTestApp(t, db, nil)
		app.now = func() time.Time { return fixedNow }

		rr := httptest.NewRecorder()
		app.getEchoes(rr, withAccount(httptest.NewRequest(http.MethodGet, "/api/echoes", nil), "acc-1"))

		require.Equal(t, http.StatusOK, rr.Code)
		var page types.EchoPage
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&page))
		assert.Equal(t, 1, page.Page)
		assert.Equal(t, 2, page.TotalPages)
		assert.Equal(t, 8, page.Total)
		assert.Len(t, page.Echoes, 6)
	})

	t.Run("second page with explicit window", func(t *testing.T) {
		since := fixedNow.Add(-time.Hour)
		db := &database.MockEchoesRepository{}
		db.On("ListEchoesSince", mock.Anything, mock.MatchedBy(func(ts time.Time) bool { return ts.Equal(since) })).
			Return(testEchoes(8), nil)

		app, _ := newTestApp(t, db, nil)
		q := url.Values{"page": {"2"}, "since": {since.Format(time.RFC3339)}}
		rr := httptest.NewRecorder()
		app.getEchoes(rr, withAccount(httptest.NewRequest(http.MethodGet, "/api/echoes?"+q.Encode(), nil), "acc-1"))

		require.Equal(t, http.StatusOK, rr.Code)
		var page types.EchoPage
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&page))
		assert.Len(t, page.Echoes, 2)
	})

	tcases := []struct {
		name  string
		query string
		code  string
	}{
		{name: "page not a number", query: "page=abc"},
		{name: "page out of range", query: "page=4", code: apperr.CodeInvalidPage},
		{name: "bad since", query: "since=yesterday"},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockEchoesRepository{}
			db.On("ListEchoesSince", mock.Anything, mock.Anything).Return([]database.Echo{}, nil).Maybe()

			app, _ := newTestApp(t, db, nil)
			rr := httptest.NewRecorder()
			app.getEchoes(rr, withAccount(httptest.NewRequest(http.MethodGet, "/api/echoes?"+tc.query, nil), "acc-1"))

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, tc.code, decodeApiError(t, rr).Code)
		})
	}
}

func TestPostEcho(t *testing.T) {
	t.Run("stores echo under rotating id", func(t *testing.T) {
		db := &database.MockEchoesRepository{}
		defer db.AssertExpectations(t)
		expectProfile(db, "acc-1", "Echo3")
		db.On("CreateEcho", mock.Anything, mock.MatchedBy(func(e database.Echo) bool {
			return e.Content == "hi" && e.RotatingId == "Echo3" && e.Mood == types.DefaultMood && e.OwnerAccountId == "acc-1"
		})).Return(nil)

		app, _ := newTestApp(t, db, nil)
		rr := httptest.NewRecorder()
		app.postEcho(rr, withAccount(httptest.NewRequest(http.MethodPost, "/api/echoes",
			strings.NewReader(`{"content":"hi"}`)), "acc-1"))

		require.Equal(t, http.StatusCreated, rr.Code)
		var echo types.Echo
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&echo))
		assert.Equal(t, "Echo3", echo.RotatingId)
		assert.Equal(t, types.DefaultBackgroundColor, echo.BackgroundColor)
	})

	t.Run("blank content", func(t *testing.T) {
		db := &database.MockEchoesRepository{}
		app, _ := newTestApp(t, db, nil)
		rr := httptest.NewRecorder()
		app.postEcho(rr, withAccount(httptest.NewRequest(http.MethodPost, "/api/echoes",
			strings.NewReader(`{"content":"  "}`)), "acc-1"))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, apperr.CodeEmptyContent, decodeApiError(t, rr).Code)
		db.AssertNotCalled(t, "CreateEcho", mock.Anything, mock.Anything)
	})
}

func TestVibes(t *testing.T) {
	t.Run("save shared vibe", func(t *testing.T) {
		db := &database.MockEchoesRepository{}
		defer db.AssertExpectations(t)
		expectProfile(db, "acc-1", "Echo3")
		db.On("CreateVibe", mock.Anything, mock.MatchedBy(func(v database.Vibe) bool { return v.IsShared })).Return(nil)
		db.On("CreateEcho", mock.Anything, mock.Anything).Return(nil)

		app, _ := newTestApp(t, db, nil)
		rr := httptest.NewRecorder()
		app.saveVibe(rr, withAccount(httptest.NewRequest(http.MethodPost, "/api/vibes",
			strings.NewReader(`{"content":"big day","mood":"🎉","share_to_feed":true}`)), "acc-1"))

		require.Equal(t, http.StatusCreated, rr.Code)
		var resp SaveVibeResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.True(t, resp.Vibe.IsShared)
		require.NotNil(t, resp.Echo, "expected mirrored echo")
		assert.Equal(t, "big day", resp.Echo.Content)
	})

	t.Run("list", func(t *testing.T) {
		db := &database.MockEchoesRepository{}
		db.On("ListVibesByOwner", mock.Anything, "acc-1").Return([]database.Vibe{{Id: "v1", OwnerAccountId: "acc-1"}}, nil)

		app, _ := newTestApp(t, db, nil)
		rr := httptest.NewRecorder()
		app.listVibes(rr, withAccount(httptest.NewRequest(http.MethodGet, "/api/vibes", nil), "acc-1"))

		require.Equal(t, http.StatusOK, rr.Code)
		var vibes []types.Vibe
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&vibes))
		require.Len(t, vibes, 1)
		assert.Equal(t, "v1", vibes[0].Id)
	})

	t.Run("delete missing vibe", func(t *testing.T) {
		db := &database.MockEchoesRepository{}
		db.On("DeleteVibe", mock.Anything, "acc-1", "v9").Return(database.ErrNotFound)

		app, _ := newTestApp(t, db, nil)
		req := withAccount(httptest.NewRequest(http.MethodDelete, "/api/vibes/v9", nil), "acc-1")
		req.SetPathValue("id", "v9")
		rr := httptest.NewRecorder()
		app.deleteVibe(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, apperr.CodeVibeNotFound, decodeApiError(t, rr).Code)
	})

	t.Run("delete", func(t *testing.T) {
		db := &database.MockEchoesRepository{}
		defer db.AssertExpectations(t)
		db.On("DeleteVibe", mock.Anything, "acc-1", "v1").Return(nil)

		app, _ := newTestApp(t, db, nil)
		req := withAccount(httptest.NewRequest(http.MethodDelete, "/api/vibes/v1", nil), "acc-1")
		req.SetPathValue("id", "v1")
		rr := httptest.NewRecorder()
		app.deleteVibe(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
	})
}

func TestServeWs(t *testing.T) {
	db := &database.MockEchoesRepository{}
	db.On("ListEchoesSince", mock.Anything, mock.Anything).Return([]database.Echo{}, nil).Maybe()

	app, _ := newTestApp(t, db, &config.Config{AllowedOrigins: []string{"http://allowed.example"}})
	// connection goroutines outlive the test
	app.log = zap.NewNop().Sugar()
	go app.hub.Run()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		app.hub.Shutdown(ctx)
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		app.serveWs(w, withAccount(r, "acc-1"))
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	t.Run("rejects foreign origin", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"http://evil.example"}})
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("accepts allowed origin", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"http://allowed.example"}})
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.WriteJSON(map[string]any{
			"id":        1,
			"subscribe": map[string]any{"topic": "feed"},
		}))

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg map[string]any
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Contains(t, msg, "response", "expected subscription ack")
	})
}
