package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phreakmail-web/internal/domain"
)

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body, &v))
	return v
}

func TestHealthIsPublic(t *testing.T) {
	app := newTestApp(t)

	rec := app.get("/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", decode[map[string]string](t, rec.Body.Bytes())["version"])
}

func TestTokenRejectsBadCredentials(t *testing.T) {
	app := newTestApp(t)
	app.createUser(t, "root", domain.RoleAdmin)

	rec := app.api(http.MethodPost, "/api/token", "", map[string]string{"username": "root", "password": "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = app.api(http.MethodPost, "/api/token", "", map[string]string{"username": "root"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIRequiresToken(t *testing.T) {
	app := newTestApp(t)

	rec := app.api(http.MethodGet, "/api/domains", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = app.api(http.MethodGet, "/api/domains", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIEnforcesRoles(t *testing.T) {
	app := newTestApp(t)
	app.createUser(t, "dadmin", domain.RoleDomainAdmin)
	app.createUser(t, "bob", domain.RoleUser)

	bob := app.token(t, "bob")
	assert.Equal(t, http.StatusForbidden, app.api(http.MethodGet, "/api/domains", bob, nil).Code)
	assert.Equal(t, http.StatusForbidden, app.api(http.MethodGet, "/api/mailboxes", bob, nil).Code)

	dadmin := app.token(t, "dadmin")
	assert.Equal(t, http.StatusOK, app.api(http.MethodGet, "/api/domains", dadmin, nil).Code)
	assert.Equal(t, http.StatusForbidden, app.api(http.MethodGet, "/api/users", dadmin, nil).Code)
	assert.Equal(t, http.StatusForbidden,
		app.api(http.MethodPost, "/api/domains", dadmin, map[string]string{"name": "x.test"}).Code)
}

func TestDomainLifecycleCascades(t *testing.T) {
	app := newTestApp(t)
	app.createUser(t, "root", domain.RoleAdmin)
	token := app.token(t, "root")

	rec := app.api(http.MethodPost, "/api/domains", token, map[string]string{"name": "Example.COM", "description": "main"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[DomainResponse](t, rec.Body.Bytes())
	assert.Equal(t, "example.com", created.Name)
	assert.True(t, created.Active)

	rec = app.api(http.MethodPost, "/api/domains", token, map[string]string{"name": "example.com"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = app.api(http.MethodPost, "/api/domains", token, map[string]string{"name": "not a domain"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	inactive := false
	rec = app.api(http.MethodPut, fmt.Sprintf("/api/domains/%d", created.ID), token, map[string]any{"active": inactive})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decode[DomainResponse](t, rec.Body.Bytes()).Active)

	for _, name := range []string{"alice", "bob"} {
		rec = app.api(http.MethodPost, "/api/mailboxes", token, map[string]any{"username": name, "domain_id": created.ID})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	rec = app.api(http.MethodPost, "/api/mailboxes", token, map[string]any{"username": "alice", "domain_id": created.ID})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = app.api(http.MethodGet, "/api/mailboxes", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mailboxes := decode[[]MailboxResponse](t, rec.Body.Bytes())
	require.Len(t, mailboxes, 2)
	assert.Equal(t, "alice@example.com", mailboxes[0].Address)

	rec = app.api(http.MethodDelete, fmt.Sprintf("/api/domains/%d", created.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = app.api(http.MethodGet, "/api/mailboxes", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]MailboxResponse](t, rec.Body.Bytes()))

	rec = app.api(http.MethodDelete, fmt.Sprintf("/api/domains/%d", created.ID), token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = app.api(http.MethodDelete, "/api/domains/abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMailboxForMissingDomain(t *testing.T) {
	app := newTestApp(t)
	app.createUser(t, "root", domain.RoleAdmin)
	token := app.token(t, "root")

	rec := app.api(http.MethodPost, "/api/mailboxes", token, map[string]any{"username": "alice", "domain_id": 999})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDomainAdminScopeThroughAPI(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	app.createUser(t, "root", domain.RoleAdmin)
	dadmin := app.createUser(t, "dadmin", domain.RoleDomainAdmin)
	bob := app.createUser(t, "bob", domain.RoleUser)

	mine, err := app.directory.CreateDomain(ctx, "mine.test", "")
	require.NoError(t, err)
	other, err := app.directory.CreateDomain(ctx, "other.test", "")
	require.NoError(t, err)
	foreign, err := app.directory.CreateMailbox(ctx, "dave", other.ID, "")
	require.NoError(t, err)

	root := app.token(t, "root")
	rec := app.api(http.MethodPost, fmt.Sprintf("/api/domains/%d/admins", mine.ID), root, map[string]any{"user_id": dadmin.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = app.api(http.MethodPost, fmt.Sprintf("/api/domains/%d/admins", mine.ID), root, map[string]any{"user_id": bob.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	token := app.token(t, "dadmin")
	rec = app.api(http.MethodGet, "/api/domains", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	domains := decode[[]DomainResponse](t, rec.Body.Bytes())
	require.Len(t, domains, 1)
	assert.Equal(t, "mine.test", domains[0].Name)

	rec = app.api(http.MethodPost, "/api/mailboxes", token, map[string]any{"username": "carol", "domain_id": mine.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	carol := decode[MailboxResponse](t, rec.Body.Bytes())

	rec = app.api(http.MethodPost, "/api/mailboxes", token, map[string]any{"username": "eve", "domain_id": other.ID})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	outOfScope := app.api(http.MethodDelete, fmt.Sprintf("/api/mailboxes/%d", foreign.ID), token, nil)
	missing := app.api(http.MethodDelete, "/api/mailboxes/9999", token, nil)
	assert.Equal(t, http.StatusNotFound, outOfScope.Code)
	assert.Equal(t, missing.Code, outOfScope.Code)
	assert.JSONEq(t, missing.Body.String(), outOfScope.Body.String())
	_, err = app.directory.GetMailbox(ctx, foreign.ID)
	require.NoError(t, err, "mailbox outside the scope must survive")

	rec = app.api(http.MethodGet, "/api/mailboxes", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mailboxes := decode[[]MailboxResponse](t, rec.Body.Bytes())
	require.Len(t, mailboxes, 1)
	assert.Equal(t, "carol@mine.test", mailboxes[0].Address)

	rec = app.api(http.MethodDelete, fmt.Sprintf("/api/mailboxes/%d", carol.ID), token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = app.api(http.MethodDelete, fmt.Sprintf("/api/domains/%d/admins/%d", mine.ID, dadmin.ID), root, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = app.api(http.MethodGet, "/api/domains", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]DomainResponse](t, rec.Body.Bytes()))
}

func TestUserManagement(t *testing.T) {
	app := newTestApp(t)
	app.createUser(t, "root", domain.RoleAdmin)
	token := app.token(t, "root")

	rec := app.api(http.MethodPost, "/api/users", token, map[string]string{"username": "carol", "password": testPassword})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	carol := decode[UserResponse](t, rec.Body.Bytes())
	assert.Equal(t, domain.RoleUser, carol.Role)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = app.api(http.MethodPost, "/api/users", token, map[string]string{"username": "carol", "password": testPassword})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = app.api(http.MethodPost, "/api/users", token, map[string]string{"username": "dan", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = app.api(http.MethodPost, "/api/users", token, map[string]string{"username": "dan", "password": strings.Repeat("x", 80)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "at most 72 bytes")
	rec = app.api(http.MethodPost, "/api/users", token, map[string]string{"username": "dan", "password": testPassword, "role": "root"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.api(http.MethodPut, fmt.Sprintf("/api/users/%d/role", carol.ID), token, map[string]string{"role": "domainadmin"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.RoleDomainAdmin, decode[UserResponse](t, rec.Body.Bytes()).Role)

	rec = app.api(http.MethodPut, "/api/users/999/role", token, map[string]string{"role": "user"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = app.api(http.MethodGet, "/api/users", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]UserResponse](t, rec.Body.Bytes()), 2)
}

func TestRoleChangeAppliesToWebSession(t *testing.T) {
	app := newTestApp(t)
	app.createUser(t, "root", domain.RoleAdmin)
	carol := app.createUser(t, "carol", domain.RoleUser)
	cookies := app.login(t, "carol")

	rec := app.api(http.MethodPut, fmt.Sprintf("/api/users/%d/role", carol.ID), app.token(t, "root"), map[string]string{"role": "domainadmin"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = app.get("/", cookies...)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/domainadmin/mailbox/", rec.Header().Get("Location"))
}

func TestExportDisabledWithoutBucket(t *testing.T) {
	app := newTestApp(t)
	app.createUser(t, "root", domain.RoleAdmin)
	token := app.token(t, "root")

	assert.Equal(t, http.StatusServiceUnavailable, app.api(http.MethodPost, "/api/exports", token, nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, app.api(http.MethodGet, "/api/exports", token, nil).Code)
}

func TestDemotedDomainAdminLosesScope(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	app.createUser(t, "root", domain.RoleAdmin)
	dadmin := app.createUser(t, "dadmin", domain.RoleDomainAdmin)
	d, err := app.directory.CreateDomain(ctx, "mine.test", "")
	require.NoError(t, err)
	require.NoError(t, app.directory.AssignDomainAdmin(ctx, dadmin.ID, d.ID))

	root := app.token(t, "root")
	for _, role := range []string{"user", "domainadmin"} {
		rec := app.api(http.MethodPut, fmt.Sprintf("/api/users/%d/role", dadmin.ID), root, map[string]string{"role": role})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := app.api(http.MethodGet, "/api/domains", app.token(t, "dadmin"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]DomainResponse](t, rec.Body.Bytes()))
}
