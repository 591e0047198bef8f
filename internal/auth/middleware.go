package auth

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Middleware authenticates bearer tokens and enforces the policy.
type Middleware struct {
	secret []byte
	policy Policy
	logger *zap.Logger
}

// MiddlewareOption configures the middleware.
type MiddlewareOption func(*Middleware)

// WithMiddlewareLogger logs rejected requests.
func WithMiddlewareLogger(logger *zap.Logger) MiddlewareOption {
	return func(m *Middleware) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMiddleware constructs the middleware.
func NewMiddleware(secret []byte, policy Policy, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{secret: secret, policy: policy, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Wrap guards next.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		required, guarded := m.policy.RequiredRole(r)
		if m.policy.IsExempt(r) || !guarded {
			next.ServeHTTP(w, r)
			return
		}
		id, err := ParseJWT(bearerToken(r.Header.Get("Authorization")), m.secret)
		if err != nil {
			m.logger.Debug("rejected token", zap.String("path", r.URL.Path), zap.Error(err))
			w.Header().Set("WWW-Authenticate", `Bearer realm="moose"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !id.Role.Satisfies(required) {
			m.logger.Info("insufficient role",
				zap.String("path", r.URL.Path),
				zap.String("user_id", id.UserID),
				zap.String("role", string(id.Role)),
				zap.String("required", string(required)))
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id.Role, id.UserID)))
	})
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
