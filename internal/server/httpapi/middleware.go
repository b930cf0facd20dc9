package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/gin-gonic/gin"
)

const subjectKey = "subject"

// requireAccessToken accepts only requests carrying a valid access token and
// stores its subject under subjectKey.
func (s *HTTPServer) requireAccessToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(common.AuthorizationHeaderName)
		if !strings.HasPrefix(header, common.BearerPrefix) {
			abortError(c, common.ErrorUnauthorized)
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(header, common.BearerPrefix))
		claims, err := s.auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			s.logger.Debug(c.Request.Context(), "access token rejected", "path", c.Request.URL.Path, "error", err)
			abortError(c, common.ErrorUnauthorized)
			return
		}

		c.Set(subjectKey, claims.Subject)
		c.Next()
	}
}

// recoverPanic answers a panicking request with an opaque 500. Only the
// method, path and panic value are logged; headers and cookies never are.
func (s *HTTPServer) recoverPanic(c *gin.Context, rec any) {
	s.logger.Error(c.Request.Context(), "panic recovered",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"panic", fmt.Sprint(rec),
	)
	abortMessage(c, http.StatusInternalServerError, msgInternal)
}

// requestLogger writes one line per request. Only the path is logged, never
// the query, headers or body.
func (s *HTTPServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Info(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}

func (s *HTTPServer) requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		s.metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		s.metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
