package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MangalNathYadav/aakash-lm-student/internal/middleware"
)

// responseMeta merges the per-request metadata with the processing time.
func responseMeta(c *gin.Context, start time.Time) map[string]interface{} {
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	return meta
}

func operatorID(c *gin.Context) string {
	if claims := middleware.Claims(c); claims != nil {
		return claims.UserID
	}
	return ""
}
