package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/otgil/rethread/internal/auth"
	"github.com/otgil/rethread/internal/models"
)

type staticResolver map[string]auth.Identity

func (r staticResolver) Resolve(credential string) (*auth.Identity, error) {
	id, ok := r[credential]
	if !ok {
		return nil, errors.New("unknown credential")
	}
	return &id, nil
}

func newRouter(resolver auth.Resolver, roles ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(JWT(resolver))
	if len(roles) > 0 {
		r.Use(RequireRole(roles...))
	}
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, CurrentIdentity(c).Nickname)
	})
	return r
}

func do(r http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTMiddleware(t *testing.T) {
	resolver := staticResolver{
		"good": {UserID: uuid.New(), Nickname: "mina", Role: models.RoleMember},
	}
	r := newRouter(resolver)

	w := do(r, "Bearer good")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "mina", w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, do(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "Token good").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "Bearer bad").Code)
}

func TestRequireRole(t *testing.T) {
	resolver := staticResolver{
		"member": {UserID: uuid.New(), Nickname: "mina", Role: models.RoleMember},
		"admin":  {UserID: uuid.New(), Nickname: "root", Role: models.RoleAdmin},
	}
	r := newRouter(resolver, string(models.RoleAdmin))

	assert.Equal(t, http.StatusForbidden, do(r, "Bearer member").Code)
	assert.Equal(t, http.StatusOK, do(r, "Bearer admin").Code)
}

func TestCORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS("http://localhost:3000"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSRejectsUnknownOriginPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS("http://localhost:3000"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
