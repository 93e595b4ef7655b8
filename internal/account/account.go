// Package account implements the login, registration and logout flows on top
// of the API client and the session store.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Joseda-hg/taskboard/internal/auth"
	"github.com/Joseda-hg/taskboard/internal/model"
)

const MinPasswordLength = 6

const DefaultCountryCode = "+92"

// ErrInvalidCredentials means the server answered but its token could not be
// used. Nothing is persisted when it is returned.
var ErrInvalidCredentials = errors.New("invalid token format")

type Backend interface {
	Login(ctx context.Context, username, password string) (model.Token, error)
	Register(ctx context.Context, registration model.Registration) (model.User, error)
	CurrentUser(ctx context.Context) (model.User, error)
}

type Session interface {
	Token(ctx context.Context) (string, bool)
	SetSession(ctx context.Context, token string, user model.User) error
	UpdateUser(ctx context.Context, token string, user model.User) error
	ClearSession(ctx context.Context) error
}

type LoginForm struct {
	Email    string
	Password string
}

func (f LoginForm) Validate() error {
	if strings.TrimSpace(f.Email) == "" {
		return &model.ValidationError{Field: "email", Message: "Email is required"}
	}
	if f.Password == "" {
		return &model.ValidationError{Field: "password", Message: "Password is required"}
	}
	return nil
}

type RegisterForm struct {
	Email           string
	Password        string
	ConfirmPassword string
	FullName        string
	FatherName      string
	CountryCode     string
	PhoneNumber     string
}

func (f RegisterForm) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"email", f.Email},
		{"full_name", f.FullName},
		{"father_name", f.FatherName},
		{"phone_number", PhoneDigits("", f.PhoneNumber)},
		{"password", f.Password},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &model.ValidationError{Field: r.field, Message: "Please fill in all required fields."}
		}
	}
	if f.Password != f.ConfirmPassword {
		return &model.ValidationError{Field: "confirm_password", Message: "Passwords do not match"}
	}
	if utf8.RuneCountInString(f.Password) < MinPasswordLength {
		return &model.ValidationError{
			Field:   "password",
			Message: fmt.Sprintf("Password must be at least %d characters long", MinPasswordLength),
		}
	}
	return nil
}

func (f RegisterForm) Registration() model.Registration {
	countryCode := f.CountryCode
	if strings.TrimSpace(countryCode) == "" {
		countryCode = DefaultCountryCode
	}
	return model.Registration{
		Email:       strings.TrimSpace(f.Email),
		Password:    f.Password,
		FullName:    strings.TrimSpace(f.FullName),
		FatherName:  strings.TrimSpace(f.FatherName),
		PhoneNumber: PhoneDigits(countryCode, f.PhoneNumber),
	}
}

func PhoneDigits(countryCode, number string) string {
	var b strings.Builder
	for _, r := range countryCode + number {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

type Service struct {
	backend Backend
	session Session
	logger  *zap.Logger
}

func NewService(backend Backend, session Session, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{backend: backend, session: session, logger: logger}
}

// Login exchanges the credentials for a token and persists the session. The
// token is decoded but not verified; its subject becomes the user id.
func (s *Service) Login(ctx context.Context, form LoginForm) (model.User, error) {
	if err := form.Validate(); err != nil {
		return model.User{}, err
	}
	email := strings.TrimSpace(form.Email)

	token, err := s.backend.Login(ctx, email, form.Password)
	if err != nil {
		return model.User{}, err
	}

	claims, err := auth.DecodeClaims(token.AccessToken)
	if err != nil {
		s.logger.Warn("login returned an unreadable token", zap.Error(err))
		return model.User{}, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	subject, ok := auth.Subject(claims)
	if !ok {
		s.logger.Warn("login token has no subject")
		return model.User{}, ErrInvalidCredentials
	}

	user := model.User{ID: model.Ref(subject), Email: email}
	if err := s.session.SetSession(ctx, token.AccessToken, user); err != nil {
		return model.User{}, err
	}
	s.logger.Info("logged in", zap.String("user_id", subject))
	return user, nil
}

// Register creates the account. It does not log in.
func (s *Service) Register(ctx context.Context, form RegisterForm) (model.User, error) {
	if err := form.Validate(); err != nil {
		return model.User{}, err
	}
	user, err := s.backend.Register(ctx, form.Registration())
	if err != nil {
		return model.User{}, err
	}
	s.logger.Info("registered", zap.String("email", user.Email))
	return user, nil
}

func (s *Service) Logout(ctx context.Context) error {
	if err := s.session.ClearSession(ctx); err != nil {
		return err
	}
	s.logger.Info("logged out")
	return nil
}

// RefreshProfile fetches the current user and stores it, unless the session
// was replaced or cleared while the request was in flight.
func (s *Service) RefreshProfile(ctx context.Context) (model.User, error) {
	token, ok := s.session.Token(ctx)
	if !ok {
		return model.User{}, errors.New("not logged in")
	}
	user, err := s.backend.CurrentUser(ctx)
	if err != nil {
		return model.User{}, err
	}
	if err := s.session.UpdateUser(ctx, token, user); err != nil {
		return model.User{}, err
	}
	return user, nil
}
