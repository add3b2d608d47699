// Package account is the identity provider: credentials, session tokens
// and password resets.
package account

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/npezzotti/go-echoes/internal/apperr"
	"github.com/npezzotti/go-echoes/internal/database"
	"github.com/npezzotti/go-echoes/internal/identity"
	"github.com/npezzotti/go-echoes/internal/live"
	"github.com/npezzotti/go-echoes/internal/types"
	"github.com/npezzotti/go-echoes/internal/validate"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 6
	// bcrypt only hashes the first 72 bytes
	maxPasswordLength = 72
)

type Service struct {
	db         database.EchoesRepository
	ids        *identity.Manager
	broker     live.Broker
	notifier   Notifier
	validator  *validate.Validator
	signingKey []byte
	log        *zap.SugaredLogger
	now        func() time.Time
}

func NewService(
	db database.EchoesRepository,
	ids *identity.Manager,
	broker live.Broker,
	notifier Notifier,
	signingKey []byte,
	logger *zap.SugaredLogger,
) *Service {
	return &Service{
		db:         db,
		ids:        ids,
		broker:     broker,
		notifier:   notifier,
		validator:  validate.New(),
		signingKey: signingKey,
		log:        logger,
		now:        time.Now,
	}
}

func toAccount(a database.Account) types.Account {
	return types.Account{
		Id:        a.Id,
		Email:     a.EmailAddress,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func (s *Service) checkEmail(email string) error {
	if !s.validator.Var(email, "required,email") {
		return apperr.Credential(apperr.CodeInvalidEmail, "invalid email address")
	}
	return nil
}

func checkPassword(password string) error {
	if len(password) < minPasswordLength {
		return apperr.Credential(apperr.CodeWeakPassword, "password should be at least 6 characters")
	}
	if len(password) > maxPasswordLength {
		return apperr.Credential(apperr.CodePasswordTooLong, "password cannot be longer than 72 bytes")
	}
	return nil
}

func hashPassword(passwd string) (string, error) {
	passwdHash, err := bcrypt.GenerateFromPassword([]byte(passwd), bcrypt.DefaultCost)
	return string(passwdHash), err
}

func verifyPassword(passwdHash, passwd string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(passwdHash), []byte(passwd))
	return err == nil
}

// Signup creates the account, then its profile record. The two writes are
// independent: if the profile write fails the account still exists and its
// profile is created on the first session resolution.
func (s *Service) Signup(ctx context.Context, email, password string) (types.Account, string, error) {
	if err := s.checkEmail(email); err != nil {
		return types.Account{}, "", err
	}
	if err := checkPassword(password); err != nil {
		return types.Account{}, "", err
	}

	pwdHash, err := hashPassword(password)
	if err != nil {
		return types.Account{}, "", apperr.Transport(fmt.Errorf("hash password: %w", err))
	}

	acc, err := s.db.CreateAccount(ctx, database.CreateAccountParams{
		EmailAddress: email,
		PasswordHash: pwdHash,
	})
	if err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return types.Account{}, "", apperr.Credential(apperr.CodeEmailInUse, "email address is already in use")
		}
		return types.Account{}, "", apperr.Transport(fmt.Errorf("create account: %w", err))
	}

	if _, err := s.ids.Rotate(ctx, acc.Id); err != nil {
		s.log.Warnw("initialize profile after signup", "account_id", acc.Id, "error", err)
		return types.Account{}, "", err
	}

	token, err := s.createSessionToken(acc.Id)
	if err != nil {
		return types.Account{}, "", apperr.Transport(fmt.Errorf("create session token: %w", err))
	}

	s.log.Infow("account created", "account_id", acc.Id)
	return toAccount(acc), token, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (types.Account, string, error) {
	invalid := apperr.Credential(apperr.CodeInvalidCredential, "incorrect email or password")

	acc, err := s.db.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return types.Account{}, "", invalid
		}
		return types.Account{}, "", apperr.Transport(fmt.Errorf("get account: %w", err))
	}

	if !verifyPassword(acc.PasswordHash, password) {
		return types.Account{}, "", invalid
	}

	token, err := s.createSessionToken(acc.Id)
	if err != nil {
		return types.Account{}, "", apperr.Transport(fmt.Errorf("create session token: %w", err))
	}

	return toAccount(acc), token, nil
}

// Logout returns the cookie that clears the session. Tokens are stateless,
// so there is nothing to revoke server side.
func (s *Service) Logout() *http.Cookie {
	return ExpiredSessionCookie()
}

// ResetPassword issues a one-hour reset token and hands it to the notifier.
func (s *Service) ResetPassword(ctx context.Context, email string) error {
	if err := s.checkEmail(email); err != nil {
		return err
	}

	acc, err := s.db.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return apperr.Credential(apperr.CodeUserNotFound, "no account found for that email")
		}
		return apperr.Transport(fmt.Errorf("get account: %w", err))
	}

	token, err := s.createResetToken(acc.Id, acc.PasswordHash)
	if err != nil {
		return apperr.Transport(fmt.Errorf("create reset token: %w", err))
	}

	if err := s.notifier.SendPasswordReset(ctx, acc.EmailAddress, token); err != nil {
		return apperr.Transport(fmt.Errorf("send password reset: %w", err))
	}

	return nil
}

// ConfirmPasswordReset stores newPassword if token is a valid, unused reset
// token.
func (s *Service) ConfirmPasswordReset(ctx context.Context, token, newPassword string) (types.Account, error) {
	invalid := apperr.Credential(apperr.CodeInvalidResetToken, "the reset link is invalid or has expired")

	claims, err := s.parseToken(token)
	if err != nil {
		s.log.Debugw("reject reset token", "error", err)
		return types.Account{}, invalid
	}

	purpose, _ := claims[purposeClaim].(string)
	accountId, _ := claims[userIdClaim].(string)
	fp, _ := claims[fingerprintClaim].(string)
	if purpose != purposeReset || accountId == "" || fp == "" {
		return types.Account{}, invalid
	}

	if err := checkPassword(newPassword); err != nil {
		return types.Account{}, err
	}

	acc, err := s.db.GetAccountById(ctx, accountId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return types.Account{}, invalid
		}
		return types.Account{}, apperr.Transport(fmt.Errorf("get account: %w", err))
	}

	if fingerprint(acc.PasswordHash) != fp {
		return types.Account{}, invalid
	}

	pwdHash, err := hashPassword(newPassword)
	if err != nil {
		return types.Account{}, apperr.Transport(fmt.Errorf("hash password: %w", err))
	}

	updated, err := s.db.UpdatePassword(ctx, acc.Id, pwdHash)
	if err != nil {
		return types.Account{}, apperr.Transport(fmt.Errorf("update password: %w", err))
	}

	s.log.Infow("password reset", "account_id", acc.Id)
	return toAccount(updated), nil
}

// Session resolves the signed-in account and its profile, creating the
// profile if it does not exist yet.
func (s *Service) Session(ctx context.Context, accountId string) (types.SessionState, error) {
	acc, err := s.db.GetAccountById(ctx, accountId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return types.SessionState{}, apperr.Credential(apperr.CodeInvalidCredential, "session account no longer exists")
		}
		return types.SessionState{}, apperr.Transport(fmt.Errorf("get account: %w", err))
	}

	profile, err := s.ids.Ensure(ctx, accountId)
	if err != nil {
		return types.SessionState{}, err
	}

	a := toAccount(acc)
	return types.SessionState{
		Account:    &a,
		RotatingId: profile.RotatingId,
		Loading:    false,
	}, nil
}

// WatchSession streams the session state, re-resolving it whenever the
// profile record changes.
func (s *Service) WatchSession(ctx context.Context, accountId string) *live.Stream[types.SessionState] {
	return live.Watch(ctx, s.broker, func(ctx context.Context) (types.SessionState, error) {
		return s.Session(ctx, accountId)
	}, live.ProfileTopic(accountId))
}
