package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MarkoPoloResearchLab/courtbook/pkg/booking"
	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
)

const (
	// ContextKey is the gin context key holding validated claims.
	ContextKey = "auth_claims"

	bearerPrefix = "Bearer "
)

var (
	ErrMissingToken  = errors.New("session: missing token")
	ErrInvalidToken  = errors.New("session: invalid token")
	ErrInvalidConfig = errors.New("session: invalid config")
)

// Config describes how session tokens are verified.
type Config struct {
	SigningKey []byte
	Issuer     string
	CookieName string
}

// Provider resolves the authenticated payer from a request.
type Provider struct {
	config    Config
	validator *sessionvalidator.Validator
}

// NewProvider builds a Provider. The cookie name is required because the
// validator would otherwise fall back to its own default.
func NewProvider(config Config) (*Provider, error) {
	if strings.TrimSpace(config.CookieName) == "" {
		return nil, fmt.Errorf("%w: cookie name is required", ErrInvalidConfig)
	}
	validator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: config.SigningKey,
		Issuer:     config.Issuer,
		CookieName: config.CookieName,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return &Provider{config: config, validator: validator}, nil
}

// Authenticate verifies the session of request.
// The cookie wins over an Authorization bearer header.
func (provider *Provider) Authenticate(request *http.Request) (*sessionvalidator.Claims, error) {
	var (
		claims *sessionvalidator.Claims
		err    error
	)
	switch {
	case provider.hasCookie(request):
		claims, err = provider.validator.ValidateRequest(request)
	case bearerToken(request) != "":
		claims, err = provider.validator.ValidateToken(bearerToken(request))
	default:
		return nil, ErrMissingToken
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims == nil || strings.TrimSpace(claims.GetUserID()) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GinMiddleware stores valid claims on the context and never aborts.
// Handlers decide whether an anonymous caller is acceptable.
func (provider *Provider) GinMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if claims, err := provider.Authenticate(ctx.Request); err == nil {
			ctx.Set(ContextKey, claims)
		}
		ctx.Next()
	}
}

func (provider *Provider) hasCookie(request *http.Request) bool {
	cookie, err := request.Cookie(provider.config.CookieName)
	return err == nil && strings.TrimSpace(cookie.Value) != ""
}

func bearerToken(request *http.Request) string {
	header := request.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
}

// ClaimsFrom returns the claims stored by GinMiddleware, or nil.
func ClaimsFrom(ctx *gin.Context) *sessionvalidator.Claims {
	claimsValue, ok := ctx.Get(ContextKey)
	if !ok {
		return nil
	}
	claims, _ := claimsValue.(*sessionvalidator.Claims)
	return claims
}

// PayerFrom returns the authenticated payer, if any.
func PayerFrom(ctx *gin.Context) (booking.PayerID, bool) {
	claims := ClaimsFrom(ctx)
	if claims == nil {
		return booking.PayerID{}, false
	}
	payerID, err := booking.NewPayerID(claims.GetUserID())
	if err != nil {
		return booking.PayerID{}, false
	}
	return payerID, true
}
