package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRouter(origins []string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(New(origins))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func serve(r http.Handler, method, origin string, preflight bool) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, "/", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if preflight {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestCORSAllowList(t *testing.T) {
	r := newRouter([]string{"http://UI.local/"})

	w := serve(r, http.MethodGet, "http://ui.local", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://ui.local", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	w = serve(r, http.MethodGet, "http://evil.local", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	r := newRouter(nil)

	w := serve(r, http.MethodOptions, "http://ui.local", true)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-CSRFToken")
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPut)
}

func TestCORSPreflightFromUnknownOriginIsRejected(t *testing.T) {
	r := newRouter([]string{"http://ui.local"})

	w := serve(r, http.MethodOptions, "http://evil.local", true)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCORSWithoutOriginPassesThrough(t *testing.T) {
	r := newRouter([]string{"http://ui.local"})

	w := serve(r, http.MethodGet, "", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
