package account

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/npezzotti/go-echoes/internal/apperr"
	"github.com/npezzotti/go-echoes/internal/database"
	"github.com/npezzotti/go-echoes/internal/identity"
	"github.com/npezzotti/go-echoes/internal/live"
	"github.com/npezzotti/go-echoes/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testSigningKey = []byte("test-signing-key")

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) SendPasswordReset(ctx context.Context, email, token string) error {
	args := m.Called(ctx, email, token)
	return args.Error(0)
}

func newTestService(t *testing.T, db *database.MockEchoesRepository, notifier Notifier) *Service {
	broker := live.NewLocalBroker()
	logger := testutil.TestLogger(t)
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	return NewService(db, identity.NewManager(db, broker, logger), broker, notifier, testSigningKey, logger)
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestSignup(t *testing.T) {
	t.Run("creates account and profile", func(t *testing.T) {
		db := &database.MockEchoesRepository{}
		defer db.AssertExpectations(t)
		db.On("CreateAccount", mock.Anything, mock.MatchedBy(func(p database.CreateAccountParams) bool {
			return p.EmailAddress == "new@example.com" && bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte("secret1")) == nil
		})).Return(database.Account{Id: "acc-1", EmailAddress: "new@example.com"}, nil)
		db.On("UpsertRotatingId", mock.Anything, "acc-1", mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).
			Return(database.Profile{AccountId: "acc-1", RotatingId: "Echo5"}, nil)

		s := newTestService(t, db, nil)
		acc, token, err := s.Signup(context.Background(), "new@example.com", "secret1")
		require.NoError(t, err)
		assert.Equal(t, "acc-1", acc.Id)

		accountId, err := s.VerifySessionToken(token)
		require.NoError(t, err)
		assert.Equal(t, "acc-1", accountId)
	})

	tcases := []struct {
		name     string
		email    string
		password string
		code     string
	}{
		{name: "invalid email", email: "not-an-email", password: "secret1", code: apperr.CodeInvalidEmail},
		{name: "empty email", email: "", password: "secret1", code: apperr.CodeInvalidEmail},
		{name: "weak password", email: "a@example.com", password: "12345", code: apperr.CodeWeakPassword},
		{name: "password too long", email: "long@example.com", password: strings.Repeat("p", 80), code: apperr.CodePasswordTooLong},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockEchoesRepository{}
			_, _, err := newTestService(t, db, nil).Signup(context.Background(), tc.email, tc.password)
			assert.Equal(t, apperr.KindCredential, apperr.KindOf(err))
			assert.Equal(t, tc.code, apperr.CodeOf(err))
			db.AssertNotCalled(t, "CreateAccount", mock.Anything, mock.Anything)
		})
	}

	t.Run("email already in use", func(t *testing.T) {
		db := &database.MockEchoesRepository{}
		db.On("CreateAccount", mock.Anything, mock.Anything).
			Return(database.Account{}, errors.Join(database.ErrDuplicate, errors.New("accounts_email_key")))

		_, _, err := newTestService(t, db, nil).Signup(context.Background(), "taken@example.com", "secret1")
		assert.Equal(t, apperr.CodeEmailInUse, apperr.CodeOf(err))
	})

	t.Run("profile failure leaves account in place", func(t *testing.T) {
		db := &database.MockEchoesRepository{}
		defer db.AssertExpectations(t)
		db.On("CreateAccount", mock.Anything, mock.Anything).Return(database.Account{Id: "acc-1"}, nil)
		db.On("UpsertRotatingId", mock.Anything, "acc-1", mock.Anything, mock.Anything).
			Return(database.Profile{}, errors.New("db error: timeout"))

		_, token, err := newTestService(t, db, nil).Signup(context.Background(), "new@example.com", "secret1")
		assert.Equal(t, apperr.KindTransport, apperr.KindOf(err))
		assert.Empty(t, token)
	})
}

func TestLogin(t *testing.T) {
	hash := mustHash(t, "secret1")

	tcases := []struct {
		name     string
		account  database.Account
		dbErr    error
		password string
		kind     apperr.Kind
		code     string
	}{
		{
			name:     "valid credentials",
			account:  database.Account{Id: "acc-1", EmailAddress: "user@example.com", PasswordHash: hash},
			password: "secret1",
		},
		{
			name:     "wrong password",
			account:  database.Account{Id: "acc-1", PasswordHash: hash},
			password: "wrong-password",
			kind:     apperr.KindCredential,
			code:     apperr.CodeInvalidCredential,
		},
		{
			name:     "unknown email",
			dbErr:    database.ErrNotFound,
			password: "secret1",
			kind:     apperr.KindCredential,
			code:     apperr.CodeInvalidCredential,
		},
		{
			name:     "store failure",
			dbErr:    errors.New("db error: conn refused"),
			password: "secret1",
			kind:     apperr.KindTransport,
			code:     apperr.CodeUnavailable,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockEchoesRepository{}
			db.On("GetAccountByEmail", mock.Anything, "user@example.com").Return(tc.account, tc.dbErr)

			s := newTestService(t, db, nil)
			acc, token, err := s.Login(context.Background(), "user@example.com", tc.password)
			if tc.code != "" {
				assert.Equal(t, tc.kind, apperr.KindOf(err))
				assert.Equal(t, tc.code, apperr.CodeOf(err))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "acc-1", acc.Id)
			assert.NotEmpty(t, token)
		})
	}
}

func TestLogout(t *testing.T) {
	c := newTestService(t, &database.MockEchoesRepository{}, nil).Logout()
	assert.Equal(t, SessionCookieName, c.Name)
	assert.Empty(t, c.Value)
	assert.Less(t, c.MaxAge, 0, "expected cookie to be deleted")
}

func TestResetPassword(t *testing.T) {
	t.Run("hands a reset token to the notifier", func(t *testing.T) {
		db := &database.MockEchoesRepository{}
		db.On("GetAccountByEmail", mock.Anything, "user@example.com").
			Return(database.Account{Id: "acc-1", EmailAddress: "user@example.com", PasswordHash: "hash"}, nil)

		notifier := &mockNotifier{}
		defer notifier.AssertExpectations(t)
		notifier.On("SendPasswordReset", mock.Anything, "user@example.com", mock.AnythingOfType("string")).Return(nil)

		s := newTestService(t, db, notifier)
		require.NoError(t, s.ResetPassword(context.Background(), "user@example.com"))

		token := notifier.Calls[0].Arguments.String(2)
		_, err := s.VerifySessionToken(token)
		assert.Error(t, err, "expected reset token not to be accepted as a session")
	})

	t.Run("invalid email", func(t *testing.T) {
		err := newTestService(t, &database.MockEchoesRepository{}, nil).ResetPassword(context.Background(), "nope")
		assert.Equal(t, apperr.CodeInvalidEmail, apperr.CodeOf(err))
	})

	t.Run("unknown email", func(t *testing.T) {
		db := &database.MockEchoesRepository{}
		db.On("GetAccountByEmail", mock.Anything, "ghost@example.com").Return(database.Account{}, database.ErrNotFound)

		err := newTestService(t, db, nil).ResetPassword(context.Background(), "ghost@example.com")
		assert.Equal(t, apperr.KindCredential, apperr.KindOf(err))
		assert.Equal(t, apperr.CodeUserNotFound, apperr.CodeOf(err))
	})
}

func TestConfirmPasswordReset(t *testing.T) {
	oldHash := mustHash(t, "secret1")
	acc := database.Account{Id: "acc-1", EmailAddress: "user@example.com", PasswordHash: oldHash}

	t.Run("stores the new password once", func(t *testing.T) {
		db := &database.MockEchoesRepository{}
		s := newTestService(t, db, nil)
		token, err := s.createResetToken(acc.Id, acc.PasswordHash)
		require.NoError(t, err)

		db.On("GetAccountById", mock.Anything, "acc-1").Return(acc, nil).Once()
		db.On("UpdatePassword", mock.Anything, "acc-1", mock.AnythingOfType("string")).
			Return(database.Account{Id: "acc-1", PasswordHash: "new-hash", UpdatedAt: time.Now()}, nil).Once()

		_, err = s.ConfirmPasswordReset(context.Background(), token, "newsecret")
		require.NoError(t, err)

		db.On("GetAccountById", mock.Anything, "acc-1").
			Return(database.Account{Id: "acc-1", PasswordHash: "new-hash"}, nil).Once()
		_, err = s.ConfirmPasswordReset(context.Background(), token, "another1")
		assert.Equal(t, apperr.CodeInvalidResetToken, apperr.CodeOf(err), "expected token to be single use")
	})

	t.Run("weak new password", func(t *testing.T) {
		s := newTestService(t, &database.MockEchoesRepository{}, nil)
		token, err := s.createResetToken(acc.Id, acc.PasswordHash)
		require.NoError(t, err)

		_, err = s.ConfirmPasswordReset(context.Background(), token, "123")
		assert.Equal(t, apperr.CodeWeakPassword, apperr.CodeOf(err))

		_, err = s.ConfirmPasswordReset(context.Background(), token, strings.Repeat("p", 73))
		assert.Equal(t, apperr.KindCredential, apperr.KindOf(err))
		assert.Equal(t, apperr.CodePasswordTooLong, apperr.CodeOf(err))
	})

	t.Run("session token is not a reset token", func(t *testing.T) {
		s := newTestService(t, &database.MockEchoesRepository{}, nil)
		token, err := s.createSessionToken("acc-1")
		require.NoError(t, err)

		_, err = s.ConfirmPasswordReset(context.Background(), token, "newsecret")
		assert.Equal(t, apperr.CodeInvalidResetToken, apperr.CodeOf(err))
	})

	t.Run("expired token", func(t *testing.T) {
		s := newTestService(t, &database.MockEchoesRepository{}, nil)
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			userIdClaim:      "acc-1",
			purposeClaim:     purposeReset,
			fingerprintClaim: fingerprint(oldHash),
			expClaim:         time.Now().Add(-time.Minute).Unix(),
		}).SignedString(testSigningKey)
		require.NoError(t, err)

		_, err = s.ConfirmPasswordReset(context.Background(), token, "newsecret")
		assert.Equal(t, apperr.CodeInvalidResetToken, apperr.CodeOf(err))
	})
}

func TestVerifySessionToken(t *testing.T) {
	s := newTestService(t, &database.MockEchoesRepository{}, nil)

	t.Run("wrong key", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			userIdClaim: "acc-1",
			expClaim:    time.Now().Add(time.Hour).Unix(),
		}).SignedString([]byte("other-key"))
		require.NoError(t, err)

		_, err = s.VerifySessionToken(token)
		assert.Error(t, err)
	})

	t.Run("missing user id", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			expClaim: time.Now().Add(time.Hour).Unix(),
		}).SignedString(testSigningKey)
		require.NoError(t, err)

		_, err = s.VerifySessionToken(token)
		assert.Error(t, err)
	})
}

func TestSession(t *testing.T) {
	t.Run("resolves account and identifier", func(t *testing.T) {
		db := &database.MockEchoesRepository{}
		db.On("GetAccountById", mock.Anything, "acc-1").Return(database.Account{Id: "acc-1", EmailAddress: "user@example.com"}, nil)
		db.On("GetProfile", mock.Anything, "acc-1").Return(database.Profile{AccountId: "acc-1", RotatingId: "Echo42"}, nil)

		state, err := newTestService(t, db, nil).Session(context.Background(), "acc-1")
		require.NoError(t, err)
		assert.False(t, state.Loading)
		require.NotNil(t, state.Account)
		assert.Equal(t, "user@example.com", state.Account.Email)
		assert.Equal(t, "Echo42", state.RotatingId)
	})

	t.Run("deleted account", func(t *testing.T) {
		db := &database.MockEchoesRepository{}
		db.On("GetAccountById", mock.Anything, "acc-1").Return(database.Account{}, database.ErrNotFound)

		_, err := newTestService(t, db, nil).Session(context.Background(), "acc-1")
		assert.Equal(t, apperr.KindCredential, apperr.KindOf(err))
	})
}

func TestWatchSession(t *testing.T) {
	db := &database.MockEchoesRepository{}
	db.On("GetAccountById", mock.Anything, "acc-1").Return(database.Account{Id: "acc-1"}, nil)
	db.On("GetProfile", mock.Anything, "acc-1").Return(database.Profile{AccountId: "acc-1", RotatingId: "Echo1"}, nil).Once()
	db.On("GetProfile", mock.Anything, "acc-1").Return(database.Profile{AccountId: "acc-1", RotatingId: "Echo2"}, nil)

	s := newTestService(t, db, nil)
	stream := s.WatchSession(context.Background(), "acc-1")
	defer stream.Close()

	first := <-stream.Updates()
	assert.Equal(t, "Echo1", first.RotatingId)

	require.NoError(t, s.broker.Publish(context.Background(), live.ProfileTopic("acc-1")))

	select {
	case next := <-stream.Updates():
		assert.Equal(t, "Echo2", next.RotatingId)
	case <-time.After(time.Second):
		t.Fatal("expected session update after profile change")
	}
}
