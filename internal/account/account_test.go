package account

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Joseda-hg/taskboard/internal/api"
	"github.com/Joseda-hg/taskboard/internal/apitest"
	"github.com/Joseda-hg/taskboard/internal/auth"
	"github.com/Joseda-hg/taskboard/internal/db"
	"github.com/Joseda-hg/taskboard/internal/model"
)

func newTestSession(t *testing.T) *auth.Store {
	t.Helper()
	conn, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return auth.NewStore(db.NewStore(conn), nil)
}

func newTestService(t *testing.T) (*Service, *auth.Store, *apitest.Server) {
	t.Helper()
	server := apitest.New(t)
	session := newTestSession(t)
	client := api.New(server.BaseURL(), session)
	return NewService(client, session, nil), session, server
}

func TestRegisterFormValidate(t *testing.T) {
	valid := RegisterForm{
		Email:           "ada@example.com",
		Password:        "hunter22",
		ConfirmPassword: "hunter22",
		FullName:        "Ada Lovelace",
		FatherName:      "George Byron",
		PhoneNumber:     "300 1234567",
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name    string
		mutate  func(*RegisterForm)
		field   string
		message string
	}{
		{"missing full name", func(f *RegisterForm) { f.FullName = " " }, "full_name", "Please fill in all required fields."},
		{"phone without digits", func(f *RegisterForm) { f.PhoneNumber = "--" }, "phone_number", "Please fill in all required fields."},
		{"confirmation mismatch", func(f *RegisterForm) { f.ConfirmPassword = "hunter23" }, "confirm_password", "Passwords do not match"},
		{"short password", func(f *RegisterForm) { f.Password, f.ConfirmPassword = "abc", "abc" }, "password", "Password must be at least 6 characters long"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := valid
			tt.mutate(&form)
			var validation *model.ValidationError
			require.True(t, errors.As(form.Validate(), &validation))
			assert.Equal(t, tt.field, validation.Field)
			assert.Equal(t, tt.message, validation.Message)
		})
	}
}

func TestRegistrationSendsDigitsOnly(t *testing.T) {
	form := RegisterForm{Email: " ada@example.com ", CountryCode: "+44", PhoneNumber: "(20) 7946-0958"}
	registration := form.Registration()
	assert.Equal(t, "442079460958", registration.PhoneNumber)
	assert.Equal(t, "ada@example.com", registration.Email)

	form.CountryCode = ""
	assert.Equal(t, "922079460958", form.Registration().PhoneNumber)
}

func TestLoginPersistsSessionFromTokenSubject(t *testing.T) {
	service, session, server := newTestService(t)
	id := server.AddUser("ada@example.com", "hunter22")
	ctx := context.Background()

	user, err := service.Login(ctx, LoginForm{Email: "ada@example.com", Password: "hunter22"})
	require.NoError(t, err)
	assert.Equal(t, model.Ref("1"), user.ID)
	assert.EqualValues(t, 1, id)

	assert.True(t, session.IsAuthenticated(ctx))
	stored, ok := session.CurrentUser(ctx)
	require.True(t, ok)
	assert.Equal(t, "ada@example.com", stored.Email)

	profile, err := service.RefreshProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", profile.Email)

	require.NoError(t, service.Logout(ctx))
	assert.False(t, session.IsAuthenticated(ctx))
}

func TestLoginFailureKeepsSessionEmpty(t *testing.T) {
	service, session, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.Login(ctx, LoginForm{Email: "ada@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, "Incorrect email or password", api.Message(err, "Login failed"))
	assert.False(t, session.IsAuthenticated(ctx))

	_, err = service.Login(ctx, LoginForm{Email: "", Password: "x"})
	var validation *model.ValidationError
	require.True(t, errors.As(err, &validation))
}

type stubBackend struct {
	token string
}

func (b stubBackend) Login(context.Context, string, string) (model.Token, error) {
	return model.Token{AccessToken: b.token}, nil
}

func (b stubBackend) Register(context.Context, model.Registration) (model.User, error) {
	return model.User{}, nil
}

func (b stubBackend) CurrentUser(context.Context) (model.User, error) {
	return model.User{}, nil
}

func TestUndecodableTokenPersistsNothing(t *testing.T) {
	ctx := context.Background()
	for _, token := range []string{"opaque-token", "a.bm90IGpzb24.c", "h.e30.s"} {
		session := newTestSession(t)
		service := NewService(stubBackend{token: token}, session, nil)

		_, err := service.Login(ctx, LoginForm{Email: "ada@example.com", Password: "hunter22"})
		assert.ErrorIs(t, err, ErrInvalidCredentials, token)
		assert.False(t, session.IsAuthenticated(ctx), token)
	}
}

func TestRegisterDoesNotLogIn(t *testing.T) {
	service, session, _ := newTestService(t)
	ctx := context.Background()

	user, err := service.Register(ctx, RegisterForm{
		Email:           "grace@example.com",
		Password:        "cobol59",
		ConfirmPassword: "cobol59",
		FullName:        "Grace Hopper",
		FatherName:      "Walter Murray",
		CountryCode:     "+1",
		PhoneNumber:     "555-0100",
	})
	require.NoError(t, err)
	assert.Equal(t, "15550100", user.PhoneNumber)
	assert.False(t, session.IsAuthenticated(ctx))

	_, err = service.Login(ctx, LoginForm{Email: "grace@example.com", Password: "cobol59"})
	require.NoError(t, err)
}

// loggingOutBackend clears the session while the profile request is in flight.
type loggingOutBackend struct {
	stubBackend
	session *auth.Store
}

func (b loggingOutBackend) CurrentUser(ctx context.Context) (model.User, error) {
	if err := b.session.ClearSession(ctx); err != nil {
		return model.User{}, err
	}
	return model.User{ID: "1", Email: "ada@example.com"}, nil
}

func TestRefreshProfileDoesNotRestoreClearedSession(t *testing.T) {
	ctx := context.Background()
	session := newTestSession(t)
	require.NoError(t, session.SetSession(ctx, "h.e30.s", model.User{ID: "1"}))

	service := NewService(loggingOutBackend{session: session}, session, nil)
	_, err := service.RefreshProfile(ctx)

	assert.ErrorIs(t, err, auth.ErrSessionChanged)
	assert.False(t, session.IsAuthenticated(ctx))
	_, ok := session.CurrentUser(ctx)
	assert.False(t, ok)
}
