package requestid

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func serve(header string) (*httptest.ResponseRecorder, string) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	var seen string
	r.GET("/", func(c *gin.Context) {
		seen = Value(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(headerKey, header)
	}
	r.ServeHTTP(w, req)
	return w, seen
}

func TestKeepsWellFormedHeader(t *testing.T) {
	w, seen := serve("req-12345678")
	assert.Equal(t, "req-12345678", seen)
	assert.Equal(t, "req-12345678", w.Header().Get(headerKey))
}

func TestReplacesMalformedHeader(t *testing.T) {
	_, seen := serve("bad id\nlog-injection")
	assert.NotEqual(t, "bad id\nlog-injection", seen)
	assert.Len(t, seen, 36)
}

func TestGeneratesWhenMissing(t *testing.T) {
	w, seen := serve("")
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(headerKey))
}
