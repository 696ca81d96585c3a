package httpgin

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// writeCachedJSON serves a public cacheable read: the marshalled body is
// hashed into a weak ETag and Cache-Control carries maxAge in seconds.
// A matching If-None-Match header short-circuits to 304 with no body,
// which is what keeps the ride summary and availability endpoints cheap
// under polling.
func writeCachedJSON(c *gin.Context, v any, maxAge int) {
	b, err := json.Marshal(v)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}

	sum := sha256.Sum256(b)
	tag := `W/"` + hex.EncodeToString(sum[:]) + `"`

	c.Header("ETag", tag)
	c.Header("Cache-Control", fmt.Sprintf("public, max-age=%d", maxAge))

	if c.GetHeader("If-None-Match") == tag {
		c.Status(http.StatusNotModified)
		return
	}

	c.Data(http.StatusOK, "application/json; charset=utf-8", b)
}
