package handlers

import (
	"bytes"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewatch/gate_api/dto"
	"github.com/gatewatch/gate_api/shared"
)

type fakeAuthService struct {
	registered []dto.RegisterRequest
	loginErr   error
	user       *dto.UserInfo
}

func (f *fakeAuthService) Register(req dto.RegisterRequest) (*dto.RegisterResponse, error) {
	f.registered = append(f.registered, req)
	return &dto.RegisterResponse{UserID: "u1", Message: "Registration successful"}, nil
}

func (f *fakeAuthService) Login(req dto.LoginRequest, clientIP string) (*dto.LoginResponse, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &dto.LoginResponse{
		AccessToken: "token",
		ExpiresIn:   86400,
		User:        dto.UserInfo{ID: "u1", Email: req.Email, CreatedAt: time.Now()},
	}, nil
}

func (f *fakeAuthService) GetUser(userID string) (*dto.UserInfo, error) {
	if f.user == nil {
		return nil, shared.NewNotFoundError("User not found")
	}
	return f.user, nil
}

func testErrorHandler(c *fiber.Ctx, err error) error {
	if appErr, ok := shared.GetAppError(err); ok {
		return shared.ResponseJSON(c, appErr.StatusCode, appErr.Message, appErr.Data)
	}
	return shared.ResponseInternalError(c, err)
}

func newAuthTestApp(svc *fakeAuthService, userID string) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: testErrorHandler})
	handler := NewAuthHandler(svc)

	if userID != "" {
		app.Use(func(c *fiber.Ctx) error {
			c.Locals(shared.UserID, userID)
			return c.Next()
		})
	}

	app.Post("/register", handler.Register)
	app.Post("/login", handler.Login)
	app.Get("/me", handler.Me)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path, body string) int {
	t.Helper()

	req := httptest.NewRequest("POST", path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestRegister_Success(t *testing.T) {
	svc := &fakeAuthService{}
	app := newAuthTestApp(svc, "")

	status := postJSON(t, app, "/register", `{"email":"a@b.com","username":"johndoe","password":"SecurePass123"}`)

	assert.Equal(t, fiber.StatusCreated, status)
	require.Len(t, svc.registered, 1)
	assert.Equal(t, "a@b.com", svc.registered[0].Email)
}

func TestRegister_ValidationFailure(t *testing.T) {
	svc := &fakeAuthService{}
	app := newAuthTestApp(svc, "")

	cases := []struct {
		name string
		body string
	}{
		{"bad email", `{"email":"nope","username":"johndoe","password":"SecurePass123"}`},
		{"weak password", `{"email":"a@b.com","username":"johndoe","password":"weak"}`},
		{"short username", `{"email":"a@b.com","username":"ab","password":"SecurePass123"}`},
		{"missing fields", `{}`},
		{"malformed json", `{`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status := postJSON(t, app, "/register", tc.body)
			assert.Equal(t, fiber.StatusBadRequest, status)
			assert.Empty(t, svc.registered)
		})
	}
}

func TestLogin_Success(t *testing.T) {
	app := newAuthTestApp(&fakeAuthService{}, "")

	status := postJSON(t, app, "/login", `{"email":"a@b.com","password":"SecurePass123"}`)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc := &fakeAuthService{loginErr: shared.NewAppError(fiber.StatusUnauthorized, "Invalid credentials")}
	app := newAuthTestApp(svc, "")

	status := postJSON(t, app, "/login", `{"email":"a@b.com","password":"WrongPass123"}`)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestMe(t *testing.T) {
	svc := &fakeAuthService{user: &dto.UserInfo{ID: "u1", Username: "johndoe"}}

	app := newAuthTestApp(svc, "")
	resp, err := app.Test(httptest.NewRequest("GET", "/me", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	app = newAuthTestApp(svc, "u1")
	resp, err = app.Test(httptest.NewRequest("GET", "/me", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
