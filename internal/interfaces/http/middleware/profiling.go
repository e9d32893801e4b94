package middleware

import (
	"context"
	"slices"

	"github.com/gin-gonic/gin"

	"github.com/erp/claimsync/internal/infrastructure/telemetry"
)

// Profiling attaches Pyroscope labels (route, method and caller) to the work
// done for each request. Requests to skipPaths are not labelled.
func Profiling(enabled bool, skipPaths ...string) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if slices.Contains(skipPaths, c.Request.URL.Path) {
			c.Next()
			return
		}
		labels := map[string]string{
			telemetry.ProfilingLabelRoute: routePattern(c),
			"method":                      c.Request.Method,
		}
		if caller := GetJWTSubject(c); caller != "" {
			labels["caller"] = caller
		}
		telemetry.WithProfilingLabels(c.Request.Context(), labels, func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}
