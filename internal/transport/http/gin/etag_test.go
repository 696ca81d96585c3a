package httpgin

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestWriteCachedJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/thing", func(c *gin.Context) {
		writeCachedJSON(c, gin.H{"id": 42}, 60)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/thing", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	tag := w.Header().Get("ETag")
	if !strings.HasPrefix(tag, `W/"`) {
		t.Fatalf("ETag = %q, want weak tag", tag)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "public, max-age=60" {
		t.Fatalf("Cache-Control = %q", cc)
	}
	if !strings.Contains(w.Body.String(), `"id":42`) {
		t.Fatalf("body = %q", w.Body.String())
	}

	// replay with the tag: conditional hit, no body
	req := httptest.NewRequest(http.MethodGet, "/thing", nil)
	req.Header.Set("If-None-Match", tag)
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req)

	if w2.Code != http.StatusNotModified {
		t.Fatalf("conditional status = %d, want 304", w2.Code)
	}
	if w2.Body.Len() != 0 {
		t.Fatalf("conditional body = %q, want empty", w2.Body.String())
	}
	if got := w2.Header().Get("ETag"); got != tag {
		t.Fatalf("conditional ETag = %q, want %q", got, tag)
	}
}
