package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type actorKey struct{}

// Authenticator проверяет bearer-токены HS256. Subject токена — ID пользователя.
type Authenticator struct {
	secret   []byte
	resolver domain.ActorResolver
	parser   *jwt.Parser
}

// NewAuthenticator создаёт проверку токенов.
func NewAuthenticator(secret string, resolver domain.ActorResolver) *Authenticator {
	return &Authenticator{
		secret:   []byte(secret),
		resolver: resolver,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// IssueToken подписывает токен для пользователя.
func (a *Authenticator) IssueToken(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

var (
	errNoToken      = errors.New("authorization token is required")
	errInvalidToken = errors.New("authorization token is invalid")
)

// authenticate возвращает пользователя из заголовка Authorization.
// Отсутствие заголовка даёт errNoToken.
func (a *Authenticator) authenticate(r *http.Request) (domain.User, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return domain.User{}, errNoToken
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return domain.User{}, errInvalidToken
	}

	var claims jwt.RegisteredClaims
	token, err := a.parser.ParseWithClaims(strings.TrimSpace(raw), &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return domain.User{}, errInvalidToken
	}

	user, err := a.resolver.ResolveActor(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, errInvalidToken
		}
		return domain.User{}, err
	}
	return user, nil
}

// Middleware кладёт пользователя в контекст, если токен передан.
// Неверный токен отклоняется даже на публичных маршрутах.
func (a *Authenticator) Middleware(onError func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := a.authenticate(r)
			switch {
			case errors.Is(err, errNoToken):
				next.ServeHTTP(w, r)
			case errors.Is(err, errInvalidToken):
				writeJSON(w, http.StatusUnauthorized, envelope{Error: err.Error()})
			case err != nil:
				onError(w, r, err)
			default:
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, user)))
			}
		})
	}
}

func requireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := actorFrom(r.Context()); !ok {
			writeJSON(w, http.StatusUnauthorized, envelope{Error: errNoToken.Error()})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(r.Context())
		if !ok {
			writeJSON(w, http.StatusUnauthorized, envelope{Error: errNoToken.Error()})
			return
		}
		if !actor.IsAdmin() {
			writeJSON(w, http.StatusForbidden, envelope{Error: domain.ErrStaffOnly.Error()})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func actorFrom(ctx context.Context) (domain.User, bool) {
	user, ok := ctx.Value(actorKey{}).(domain.User)
	return user, ok
}

// mustActor используется только за requireActor.
func mustActor(r *http.Request) domain.User {
	user, _ := actorFrom(r.Context())
	return user
}

// optionalActor возвращает nil для анонимного запроса.
func optionalActor(r *http.Request) *domain.User {
	if user, ok := actorFrom(r.Context()); ok {
		return &user
	}
	return nil
}
