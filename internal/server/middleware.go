package server

import (
	"net"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// requestLogger writes one structured line per request.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_ip", clientIP(r)),
			}
			if id := middleware.GetReqID(r.Context()); id != "" {
				fields = append(fields, zap.String("request_id", id))
			}
			switch {
			case status >= 500:
				log.Error("http request", fields...)
			case status >= 400:
				log.Warn("http request", fields...)
			default:
				log.Info("http request", fields...)
			}
		})
	}
}

// throttledRoutes are the credential and OTP endpoints guarded by the limiter.
var throttledRoutes = []string{
	"auth/login",
	"auth/forgot-password",
	"auth/reset-password",
	"auth/change-password",
	"auth/send-otp",
	"auth/verify-otp",
	"auth/verify-phone",
}

// rateLimiter keeps one token bucket per client IP. Idle buckets expire.
type rateLimiter struct {
	perMinute int
	paths     map[string]bool
	mu        sync.Mutex
	buckets   *cache.Cache
}

func newRateLimiter(basePath string, perMinute int) *rateLimiter {
	paths := make(map[string]bool, len(throttledRoutes))
	for _, r := range throttledRoutes {
		paths[path.Join(basePath, r)] = true
	}
	return &rateLimiter{
		perMinute: perMinute,
		paths:     paths,
		buckets:   cache.New(10*time.Minute, 5*time.Minute),
	}
}

func (l *rateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	var lim *rate.Limiter
	if v, ok := l.buckets.Get(ip); ok {
		lim = v.(*rate.Limiter)
	} else {
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute)
	}
	l.buckets.SetDefault(ip, lim)
	return lim.Allow()
}

func (l *rateLimiter) Middleware(next http.Handler) http.Handler {
	if l.perMinute <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && l.paths[strings.TrimSuffix(r.URL.Path, "/")] && !l.allow(clientIP(r)) {
			w.Header().Set("Retry-After", "60")
			respondStatusError(w, newAPIError(http.StatusTooManyRequests, "", "Too many requests, try again later", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
