// auth.go — JWT middleware: проверка подписи через JWKS, извлечение ролей,
// ограничение изменяющих запросов ролью администратора тегов.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/goarttag/internal/api/errors"
)

type contextKey string

const (
	// ContextKeyClaims — claims в контексте запроса.
	ContextKeyClaims contextKey = "jwt_claims"
)

// AuthClaims — claims, доступные обработчикам.
type AuthClaims struct {
	// Subject — sub из JWT
	Subject string
	// PreferredUsername — preferred_username из JWT
	PreferredUsername string
	// Roles — роли из realm_access.roles
	Roles []string
	// Scopes — scopes из claim "scope" (для сервисных аккаунтов)
	Scopes []string
}

// HasRole проверяет наличие роли или одноимённого scope.
func (c *AuthClaims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role) || slices.Contains(c.Scopes, role)
}

type tokenClaims struct {
	jwt.RegisteredClaims
	PreferredUsername string       `json:"preferred_username"`
	RealmAccess       *realmAccess `json:"realm_access,omitempty"`
	Scope             string       `json:"scope,omitempty"`
}

type realmAccess struct {
	Roles []string `json:"roles"`
}

// JWTAuth — JWT-аутентификация через JWKS.
type JWTAuth struct {
	jwks      keyfunc.Keyfunc
	issuer    string
	adminRole string
	leeway    time.Duration
	logger    *slog.Logger
}

// NewJWTAuth создаёт middleware с JWKS, загружаемым по HTTP с фоновым обновлением.
// Сервис стартует, даже если JWKS endpoint ещё недоступен.
func NewJWTAuth(jwksURL, issuer, adminRole string, leeway time.Duration, logger *slog.Logger) (*JWTAuth, error) {
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: 10 * time.Second},
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           15 * time.Minute,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}
	return NewJWTAuthWithKeyfunc(k, issuer, adminRole, leeway, logger), nil
}

// NewJWTAuthWithKeyfunc создаёт middleware с готовым keyfunc (тесты, статический JWKS).
func NewJWTAuthWithKeyfunc(kf keyfunc.Keyfunc, issuer, adminRole string, leeway time.Duration, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		jwks:      kf,
		issuer:    issuer,
		adminRole: adminRole,
		leeway:    leeway,
		logger:    logger.With(slog.String("component", "jwt_auth")),
	}
}

// Middleware проверяет Bearer token и помещает claims в контекст.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}

			raw := &tokenClaims{}
			opts := []jwt.ParserOption{
				jwt.WithValidMethods([]string{"RS256"}),
				jwt.WithExpirationRequired(),
				jwt.WithLeeway(j.leeway),
			}
			if j.issuer != "" {
				opts = append(opts, jwt.WithIssuer(j.issuer))
			}

			token, err := jwt.ParseWithClaims(parts[1], raw, j.jwks.KeyfuncCtx(r.Context()), opts...)
			if err != nil || !token.Valid {
				msg := "невалидный токен"
				if err != nil {
					msg = err.Error()
				}
				j.logger.Debug("JWT валидация не пройдена",
					slog.String("error", msg),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}
			if raw.Subject == "" {
				apierrors.Unauthorized(w, "Отсутствует sub в токене")
				return
			}

			claims := &AuthClaims{
				Subject:           raw.Subject,
				PreferredUsername: raw.PreferredUsername,
				Scopes:            strings.Fields(raw.Scope),
			}
			if raw.RealmAccess != nil {
				claims.Roles = raw.RealmAccess.Roles
			}

			ctx := context.WithValue(r.Context(), ContextKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdminForWrites пропускает чтение любому аутентифицированному субъекту,
// а POST/PUT/PATCH/DELETE — только с ролью администратора.
// Используется после Middleware().
func (j *JWTAuth) RequireAdminForWrites() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
				return
			}
			if !claims.HasRole(j.adminRole) {
				apierrors.Forbidden(w, fmt.Sprintf("Недостаточно прав: требуется роль %s", j.adminRole))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClaimsFromContext извлекает AuthClaims из контекста. nil, если аутентификация отключена.
func ClaimsFromContext(ctx context.Context) *AuthClaims {
	claims, _ := ctx.Value(ContextKeyClaims).(*AuthClaims)
	return claims
}
