// Пакет auth — определение текущего пользователя (actor) по JWT.
// Подпись проверяется через JWKS (keyfunc + jwkset), actor передаётся
// между слоями через context.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken — токен не прошёл проверку подписи или claims.
var ErrInvalidToken = errors.New("невалидный или просроченный токен")

// Actor — аутентифицированный пользователь, чей граф синхронизируется.
type Actor struct {
	// ID — sub из JWT, совпадает с users.id в durable store
	ID    string
	Email string
	Name  string
	// Token — исходный bearer-токен
	Token string
}

// sessionClaims — claims JWT текущей сессии.
type sessionClaims struct {
	jwt.RegisteredClaims
	Email             string `json:"email"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
}

// Verifier проверяет JWT и извлекает Actor.
type Verifier struct {
	jwks       keyfunc.Keyfunc
	issuer     string
	algorithms []string
	leeway     time.Duration
	logger     *slog.Logger
}

// VerifierConfig — параметры Verifier.
type VerifierConfig struct {
	JWKSURL         string
	Issuer          string
	Algorithms      []string
	Leeway          time.Duration
	ClientTimeout   time.Duration
	RefreshInterval time.Duration
}

// NewVerifier создаёт Verifier с JWKS из удалённого endpoint.
// Ключи обновляются в фоне; недоступность JWKS при старте не ошибка.
func NewVerifier(cfg VerifierConfig, logger *slog.Logger) (*Verifier, error) {
	storage, err := jwkset.NewStorageFromHTTP(cfg.JWKSURL, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: cfg.ClientTimeout},
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           cfg.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", cfg.JWKSURL),
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

	return NewVerifierWithKeyfunc(k, cfg.Issuer, cfg.Algorithms, cfg.Leeway, logger), nil
}

// NewVerifierWithKeyfunc создаёт Verifier с готовой keyfunc (тесты, статический JWKS).
func NewVerifierWithKeyfunc(
	kf keyfunc.Keyfunc,
	issuer string,
	algorithms []string,
	leeway time.Duration,
	logger *slog.Logger,
) *Verifier {
	if len(algorithms) == 0 {
		algorithms = []string{"RS256"}
	}
	return &Verifier{
		jwks:       kf,
		issuer:     strings.TrimSuffix(issuer, "/"),
		algorithms: algorithms,
		leeway:     leeway,
		logger:     logger.With(slog.String("component", "jwt_verifier")),
	}
}

// Verify проверяет подпись, срок действия и issuer токена.
// Любая ошибка проверки оборачивает ErrInvalidToken.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*Actor, error) {
	claims := &sessionClaims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.algorithms),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, v.jwks.KeyfuncCtx(ctx), opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("%w: отсутствует sub", ErrInvalidToken)
	}

	name := claims.Name
	if name == "" {
		name = claims.PreferredUsername
	}
	return &Actor{
		ID:    subject,
		Email: claims.Email,
		Name:  name,
		Token: tokenString,
	}, nil
}

// contextKey — тип для ключей контекста.
type contextKey string

const actorKey contextKey = "chatsync_actor"

// WithActor помещает actor в контекст.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext извлекает actor из контекста или nil.
func ActorFromContext(ctx context.Context) *Actor {
	actor, _ := ctx.Value(actorKey).(*Actor)
	return actor
}
