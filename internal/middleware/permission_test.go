package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"transaction_system/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubUserLoader hands out one canned user and counts lookups
type stubUserLoader struct {
	user  *domain.User
	calls int
}

func (s *stubUserLoader) GetByID(context.Context, string) (*domain.User, error) {
	s.calls++
	return s.user, nil
}

func permissionRouter(loader *stubUserLoader, userID string, permission string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/guarded",
		func(c *gin.Context) {
			if userID != "" {
				c.Set("userID", userID)
			}
		},
		RequirePermission(loader, nil, 0, permission),
		func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "ok"})
		},
	)
	return r
}

func doGuarded(r *gin.Engine) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	r.ServeHTTP(w, req)
	return w
}

func TestRequirePermissionAllowsGrantedUser(t *testing.T) {
	loader := &stubUserLoader{user: &domain.User{
		ID:          "u-1",
		Permissions: []domain.Permission{{Name: domain.PermissionTransactionRead}},
	}}
	r := permissionRouter(loader, "u-1", domain.PermissionTransactionRead)

	w := doGuarded(r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, loader.calls, "the user is loaded through the loader")
}

func TestRequirePermissionDeniesMissingGrant(t *testing.T) {
	loader := &stubUserLoader{user: &domain.User{
		ID:          "u-1",
		Permissions: []domain.Permission{{Name: domain.PermissionTransactionRead}},
	}}
	r := permissionRouter(loader, "u-1", domain.PermissionTransactionDelete)

	w := doGuarded(r)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequirePermissionAdminImpliesEverything(t *testing.T) {
	loader := &stubUserLoader{user: &domain.User{
		ID:          "u-1",
		Permissions: []domain.Permission{{Name: domain.PermissionAdminAccess}},
	}}
	r := permissionRouter(loader, "u-1", domain.PermissionTransactionDelete)

	w := doGuarded(r)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequirePermissionWithoutIdentity(t *testing.T) {
	loader := &stubUserLoader{}
	r := permissionRouter(loader, "", domain.PermissionTransactionRead)

	w := doGuarded(r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	require.Zero(t, loader.calls, "no lookup happens without an authenticated principal")
}

func TestRequirePermissionUnknownUser(t *testing.T) {
	loader := &stubUserLoader{user: nil}
	r := permissionRouter(loader, "u-gone", domain.PermissionTransactionRead)

	w := doGuarded(r)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
