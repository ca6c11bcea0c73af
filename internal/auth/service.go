// Package auth provides user accounts and bearer-token sessions, both kept
// in the document store.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrSnakeDoc/vpsinv/internal/docstore"
	"github.com/MrSnakeDoc/vpsinv/internal/domain"
	"github.com/MrSnakeDoc/vpsinv/internal/logger"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrUnknownUser        = errors.New("unknown user")
)

const minPasswordLen = 8

// Attribute names of user and session documents.
const (
	attrEmail        = "email"
	attrName         = "name"
	attrPasswordHash = "passwordHash"
	attrUserID       = "userId"
	attrExpiresAt    = "expiresAt"
)

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      User      `json:"user"`
}

type Service struct {
	store  docstore.Store
	tokens *Tokens
	logger logger.Logger
}

func NewService(store docstore.Store, tokens *Tokens, log logger.Logger) *Service {
	return &Service{store: store, tokens: tokens, logger: log}
}

// Register creates an account. Emails are compared case-insensitively.
func (s *Service) Register(ctx context.Context, email, password, name string) (User, error) {
	email = normalizeEmail(email)
	name = strings.TrimSpace(name)

	verr := &domain.ValidationError{}
	if !strings.Contains(email, "@") {
		verr.Add("email", "A valid email is required")
	}
	if len(password) < minPasswordLen {
		verr.Add("password", fmt.Sprintf("Password must be at least %d characters", minPasswordLen))
	}
	if name == "" {
		verr.Add("name", "Name is required")
	}
	if err := verr.OrNil(); err != nil {
		return User{}, err
	}

	existing, err := s.store.List(ctx, docstore.CollectionUsers, docstore.Equal(attrEmail, email))
	if err != nil {
		return User{}, fmt.Errorf("failed to look up email: %w", err)
	}
	if len(existing) > 0 {
		return User{}, ErrEmailTaken
	}

	hash, err := HashPassword(password)
	if err != nil {
		return User{}, err
	}

	doc, err := s.store.Create(ctx, docstore.CollectionUsers, "", map[string]string{
		attrEmail:        email,
		attrName:         name,
		attrPasswordHash: hash,
	})
	if err != nil {
		return User{}, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("user registered", logger.String("user_id", doc.ID))
	return userFromDocument(doc), nil
}

// Login checks the credentials and opens a session.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	docs, err := s.store.List(ctx, docstore.CollectionUsers, docstore.Equal(attrEmail, normalizeEmail(email)))
	if err != nil {
		return Session{}, fmt.Errorf("failed to look up email: %w", err)
	}
	if len(docs) == 0 {
		// Unknown emails cost the same as a wrong password.
		VerifyPassword(dummyHash, password)
		return Session{}, ErrInvalidCredentials
	}
	doc := docs[0]
	if !VerifyPassword(doc.Attr(attrPasswordHash), password) {
		return Session{}, ErrInvalidCredentials
	}

	token, claims, err := s.tokens.Issue(doc.ID)
	if err != nil {
		return Session{}, err
	}
	expiresAt := claims.ExpiresAt.Time.UTC()

	if _, err := s.store.Create(ctx, docstore.CollectionSessions, claims.ID, map[string]string{
		attrUserID:    doc.ID,
		attrExpiresAt: expiresAt.Format(time.RFC3339),
	}); err != nil {
		return Session{}, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("user logged in", logger.String("user_id", doc.ID))
	return Session{Token: token, ExpiresAt: expiresAt, User: userFromDocument(doc)}, nil
}

// Logout closes the session behind token. Closing a session that is already
// gone succeeds.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return err
	}
	err = s.store.Delete(ctx, docstore.CollectionSessions, claims.ID)
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// CurrentUser resolves token to its user. The token must verify, must not be
// expired and its session must still exist.
func (s *Service) CurrentUser(ctx context.Context, token string) (User, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return User{}, err
	}

	session, err := s.store.Get(ctx, docstore.CollectionSessions, claims.ID)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return User{}, ErrInvalidToken
	case err != nil:
		return User{}, fmt.Errorf("failed to get session: %w", err)
	}
	if session.Attr(attrUserID) != claims.UserID {
		return User{}, ErrInvalidToken
	}

	doc, err := s.store.Get(ctx, docstore.CollectionUsers, claims.UserID)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return User{}, ErrInvalidToken
	case err != nil:
		return User{}, fmt.Errorf("failed to get user: %w", err)
	}
	return userFromDocument(doc), nil
}

// LookupUser finds a user by id or, when ref contains '@', by email.
func (s *Service) LookupUser(ctx context.Context, ref string) (User, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return User{}, ErrUnknownUser
	}

	if !strings.Contains(ref, "@") {
		doc, err := s.store.Get(ctx, docstore.CollectionUsers, ref)
		switch {
		case errors.Is(err, docstore.ErrNotFound):
			return User{}, fmt.Errorf("%w: %s", ErrUnknownUser, ref)
		case err != nil:
			return User{}, fmt.Errorf("failed to get user: %w", err)
		}
		return userFromDocument(doc), nil
	}

	docs, err := s.store.List(ctx, docstore.CollectionUsers, docstore.Equal(attrEmail, normalizeEmail(ref)))
	if err != nil {
		return User{}, fmt.Errorf("failed to look up user: %w", err)
	}
	if len(docs) == 0 {
		return User{}, fmt.Errorf("%w: %s", ErrUnknownUser, ref)
	}
	return userFromDocument(docs[0]), nil
}

// PurgeExpiredSessions deletes sessions that expired before now and returns
// how many were removed.
func (s *Service) PurgeExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	docs, err := s.store.List(ctx, docstore.CollectionSessions)
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	purged := 0
	for _, doc := range docs {
		expiresAt, err := time.Parse(time.RFC3339, doc.Attr(attrExpiresAt))
		if err == nil && expiresAt.After(now) {
			continue
		}
		if err := s.store.Delete(ctx, docstore.CollectionSessions, doc.ID); err != nil && !errors.Is(err, docstore.ErrNotFound) {
			s.logger.Warn("failed to delete expired session",
				logger.String("session_id", doc.ID),
				logger.Error(err))
			continue
		}
		purged++
	}
	return purged, nil
}

func userFromDocument(doc docstore.Document) User {
	return User{
		ID:        doc.ID,
		Email:     doc.Attr(attrEmail),
		Name:      doc.Attr(attrName),
		CreatedAt: doc.CreatedAt,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// dummyHash is verified against when the email is unknown.
var dummyHash = func() string {
	h, err := HashPassword("vpsinv-dummy-password")
	if err != nil {
		panic(err)
	}
	return h
}()
