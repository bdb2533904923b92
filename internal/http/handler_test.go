package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"phreakmail-web/internal/auth"
	"phreakmail-web/internal/domain"
	"phreakmail-web/internal/repository/sqlstore"
	"phreakmail-web/internal/service"
	"phreakmail-web/internal/session"
)

const testPassword = "s3cret-pass"

type testApp struct {
	router    *gin.Engine
	users     service.UserService
	directory service.DirectoryService
	redis     *miniredis.Miniredis
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sqlstore.Open(sqlstore.Config{Driver: sqlstore.DriverSQLite, Path: filepath.Join(t.TempDir(), "web.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	userRepo := sqlstore.NewUserRepository(db)
	domainRepo := sqlstore.NewDomainRepository(db)
	mailboxRepo := sqlstore.NewMailboxRepository(db)
	adminRepo := sqlstore.NewDomainAdminRepository(db)
	require.NoError(t, userRepo.Init(ctx))
	require.NoError(t, domainRepo.Init(ctx))
	require.NoError(t, mailboxRepo.Init(ctx))
	require.NoError(t, adminRepo.Init(ctx))

	users, err := service.NewUserService(userRepo, adminRepo, bcrypt.MinCost)
	require.NoError(t, err)
	directory := service.NewDirectoryService(userRepo, domainRepo, mailboxRepo, adminRepo)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	h := NewHandler(Options{
		Users:     users,
		Directory: directory,
		Exports:   service.NewExportService(directory, nil, "", ""),
		Sessions:  session.NewRedisStore(client, []byte("0123456789abcdef0123456789abcdef")),
		Tokens:    auth.NewTokenIssuer("jwt-test-secret", time.Hour),
		Version:   "test",
		Logger:    logger,
	})
	router := gin.New()
	h.RegisterRoutes(router)

	return &testApp{router: router, users: users, directory: directory, redis: mr}
}

func (a *testApp) createUser(t *testing.T, username string, role domain.Role) *domain.User {
	t.Helper()
	user, err := a.users.CreateUser(context.Background(), username, testPassword, role)
	require.NoError(t, err)
	return user
}

func (a *testApp) do(req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) get(path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	return a.do(httptest.NewRequest(http.MethodGet, path, nil), cookies...)
}

func newLoginRequest(username, password string) *http.Request {
	form := url.Values{"username": {username}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/login/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func (a *testApp) postLogin(username, password string) *httptest.ResponseRecorder {
	return a.do(newLoginRequest(username, password))
}

// login signs in and returns the session cookies.
func (a *testApp) login(t *testing.T, username string) []*http.Cookie {
	t.Helper()
	rec := a.postLogin(username, testPassword)
	require.Equal(t, http.StatusFound, rec.Code)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies
}

func (a *testApp) token(t *testing.T, username string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": username, "password": testPassword})
	req := httptest.NewRequest(http.MethodPost, "/api/token", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := a.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func (a *testApp) api(method, path, token string, payload any) *httptest.ResponseRecorder {
	var body io.Reader
	if payload != nil {
		raw, _ := json.Marshal(payload)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return a.do(req)
}
