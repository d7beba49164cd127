package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/inkwellhq/inkwell/internal/domain"
	"github.com/inkwellhq/inkwell/internal/jobs"
	"github.com/inkwellhq/inkwell/internal/store"
	"github.com/inkwellhq/inkwell/pkg/cryptox"
	"github.com/inkwellhq/inkwell/pkg/idx"
	"github.com/inkwellhq/inkwell/pkg/slogx"
)

const minPasswordLen = 8

type UserService struct {
	store  store.Store
	broker *jobs.Broker
	// verifyBaseURL is the public URL prefix verification links point at.
	verifyBaseURL string
}

func NewUserService(st store.Store, broker *jobs.Broker, verifyBaseURL string) *UserService {
	return &UserService{store: st, broker: broker, verifyBaseURL: verifyBaseURL}
}

// Register creates an account and enqueues its verification email. The
// verification token leaves the process only inside that email; the row
// stores its fingerprint.
func (s *UserService) Register(ctx context.Context, name, email, password string) (domain.User, error) {
	log := slogx.FromContext(ctx)

	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" {
		return domain.User{}, domain.Validationf("Name is required")
	}
	if !strings.Contains(email, "@") {
		return domain.User{}, domain.Validationf("A valid email address is required")
	}
	if len(password) < minPasswordLen {
		return domain.User{}, domain.Validationf("Password must be at least %d characters", minPasswordLen)
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.User{}, fmt.Errorf("generate verification token: %w", err)
	}

	now := time.Now()
	user := domain.User{
		ID:              idx.New().String(),
		Name:            name,
		Email:           email,
		PasswordHash:    hash,
		VerifyTokenHash: cryptox.FingerprintToken(token),
		VerifySentAt:    &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Users().CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, domain.Conflictf("An account with that email already exists")
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}

	s.enqueueVerificationEmail(ctx, user, token)

	log.Info("user registered", slog.String("user_id", user.ID))
	return user, nil
}

func (s *UserService) enqueueVerificationEmail(ctx context.Context, user domain.User, token string) {
	log := slogx.FromContext(ctx)

	link := fmt.Sprintf("%s/verify/%s", s.verifyBaseURL, token)
	_, err := s.broker.Enqueue(ctx, domain.QueueEmail, jobs.EmailPayload{
		To:       user.Email,
		Subject:  "Verify your email address",
		HTMLBody: fmt.Sprintf("<p>Hi %s,</p><p><a href=%q>Verify your email address</a> to finish setting up your account.</p>", user.Name, link),
	})
	if err != nil {
		log.Warn("verification email enqueue failed",
			slog.String("user_id", user.ID),
			slog.Any("error", err),
		)
	}
}

// VerifyEmail consumes a verification token. The token is single-use: the
// row update clears the fingerprint, so a second attempt with the same token
// no longer resolves.
func (s *UserService) VerifyEmail(ctx context.Context, token string) error {
	log := slogx.FromContext(ctx)

	user, err := s.store.Users().GetUserByVerifyTokenHash(ctx, cryptox.FingerprintToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.NotFoundf("Verification token is invalid or has already been used")
		}
		return fmt.Errorf("resolve verification token: %w", err)
	}

	if err := s.store.Users().MarkEmailVerified(ctx, user.ID, time.Now()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Conflictf("This account is already verified")
		}
		return fmt.Errorf("mark verified: %w", err)
	}

	log.Info("email verified", slog.String("user_id", user.ID))
	return nil
}
