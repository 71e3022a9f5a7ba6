package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/konorlevich/p2p_docs/internal/rest-service/database"
)

const DefaultTokenTTL = 30 * time.Minute

var (
	ErrConflict     = errors.New("user already exists")
	ErrUnauthorized = errors.New("invalid credentials")
	ErrEmptyField   = errors.New("username, email and password are required")
	ErrPasswordLong = errors.New("password is longer than 72 bytes")

	ErrCantGetUser    = errors.New("can't get user from db")
	ErrCantSaveUser   = errors.New("can't save user")
	ErrCantHash       = errors.New("can't hash password")
	ErrCantIssueToken = errors.New("can't issue token")
)

type UserRepository interface {
	Create(ctx context.Context, user *database.User) (*database.User, error)
	Get(ctx context.Context, id uuid.UUID) (*database.User, error)
	FindOne(ctx context.Context, where *database.User, order ...string) (*database.User, error)
}

type SignupResult struct {
	Message string
	UserID  uuid.UUID
}

type LoginResult struct {
	AccessToken string
	TokenType   string
}

type Service struct {
	users  UserRepository
	hasher *Hasher
	tokens *Tokens
	ttl    time.Duration
	l      *log.Entry

	// compared against when the username is unknown, so both failures cost one bcrypt run
	dummyHash string
}

func NewService(users UserRepository, hasher *Hasher, tokens *Tokens, ttl time.Duration, l *log.Entry) *Service {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	dummy, _ := hasher.Hash(uuid.NewString())
	return &Service{
		users:     users,
		hasher:    hasher,
		tokens:    tokens,
		ttl:       ttl,
		l:         l,
		dummyHash: dummy,
	}
}

// Signup creates a user. The username check gives the common case a clean
// answer; the unique indexes settle concurrent signups.
func (s *Service) Signup(ctx context.Context, username, email, password string) (*SignupResult, error) {
	if username == "" || email == "" || password == "" {
		return nil, ErrEmptyField
	}
	l := s.l.WithField("username", username)

	_, err := s.findByUsername(ctx, username)
	switch {
	case err == nil:
		l.Info(ErrConflict)
		return nil, ErrConflict
	case !errors.Is(err, database.ErrRecordNotFound):
		l.WithError(err).Error(ErrCantGetUser)
		return nil, ErrCantGetUser
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, ErrPasswordLong
		}
		l.WithError(err).Error(ErrCantHash)
		return nil, ErrCantHash
	}

	user, err := s.users.Create(ctx, &database.User{
		Username: username,
		Email:    email,
		Password: hash,
	})
	if err != nil {
		if errors.Is(err, database.ErrDuplicatedKey) {
			l.WithError(err).Info(ErrConflict)
			return nil, ErrConflict
		}
		l.WithError(err).Error(ErrCantSaveUser)
		return nil, ErrCantSaveUser
	}

	l.WithFields(log.Fields{"user_id": user.ID, "p2p_id": user.P2PID}).Info("user created")
	return &SignupResult{Message: "User created successfully", UserID: user.ID}, nil
}

// Login answers ErrUnauthorized for both an unknown user and a wrong password.
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	l := s.l.WithField("username", username)

	user, err := s.findByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, database.ErrRecordNotFound) {
			l.WithError(err).Error(ErrCantGetUser)
			return nil, ErrCantGetUser
		}
		s.hasher.Verify(s.dummyHash, password)
		l.Info("login failed")
		return nil, ErrUnauthorized
	}

	if !s.hasher.Verify(user.Password, password) {
		l.Info("login failed")
		return nil, ErrUnauthorized
	}

	token, err := s.tokens.Issue(Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: user.ID.String()},
		Username:         user.Username,
	}, s.ttl)
	if err != nil {
		l.WithError(err).Error(ErrCantIssueToken)
		return nil, ErrCantIssueToken
	}
	return &LoginResult{AccessToken: token, TokenType: TokenType}, nil
}

// Authenticate resolves a bearer token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (*database.User, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		s.l.WithError(err).Debug("token rejected")
		return nil, ErrInvalidToken
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		s.l.WithField("sub", claims.Subject).Debug("token has no valid subject")
		return nil, ErrInvalidToken
	}

	user, err := s.users.Get(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrRecordNotFound) {
			s.l.WithField("user_id", id).Info("token user is gone")
			return nil, ErrInvalidToken
		}
		s.l.WithError(err).Error(ErrCantGetUser)
		return nil, ErrCantGetUser
	}
	return user, nil
}

func (s *Service) findByUsername(ctx context.Context, username string) (*database.User, error) {
	// an empty struct condition would match any row
	if username == "" {
		return nil, database.ErrRecordNotFound
	}
	return s.users.FindOne(ctx, &database.User{Username: username})
}
