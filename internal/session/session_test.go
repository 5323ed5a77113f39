package session

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
)

const (
	testSigningKey = "secret-key"
	testIssuer     = "tauth"
	testCookieName = "app_session"
)

func TestAuthenticateFromCookie(test *testing.T) {
	test.Parallel()
	provider := newTestProvider(test)
	request := httptest.NewRequest(http.MethodGet, "/reservations/mine", nil)
	request.AddCookie(&http.Cookie{Name: testCookieName, Value: signToken(test, "payer-1", testIssuer, testSigningKey, time.Hour)})

	claims, err := provider.Authenticate(request)
	require.NoError(test, err)
	assert.Equal(test, "payer-1", claims.GetUserID())
}

func TestAuthenticateFromBearerHeader(test *testing.T) {
	test.Parallel()
	provider := newTestProvider(test)
	request := httptest.NewRequest(http.MethodGet, "/reservations/mine", nil)
	request.Header.Set("Authorization", "Bearer "+signToken(test, "payer-2", testIssuer, testSigningKey, time.Hour))

	claims, err := provider.Authenticate(request)
	require.NoError(test, err)
	assert.Equal(test, "payer-2", claims.GetUserID())
}

func TestAuthenticateRejectsBadTokens(test *testing.T) {
	test.Parallel()
	provider := newTestProvider(test)
	testCases := []struct {
		name         string
		token        string
		wantErr      error
		validatorErr error
	}{
		{name: "missing", token: "", wantErr: ErrMissingToken},
		{name: "wrong key", token: signToken(test, "payer-1", testIssuer, "other-key", time.Hour), wantErr: ErrInvalidToken, validatorErr: sessionvalidator.ErrInvalidToken},
		{name: "wrong issuer", token: signToken(test, "payer-1", "someone-else", testSigningKey, time.Hour), wantErr: ErrInvalidToken, validatorErr: sessionvalidator.ErrInvalidIssuer},
		{name: "expired", token: signToken(test, "payer-1", testIssuer, testSigningKey, -time.Hour), wantErr: ErrInvalidToken, validatorErr: sessionvalidator.ErrTokenExpired},
		{name: "no subject", token: signToken(test, "", testIssuer, testSigningKey, time.Hour), wantErr: ErrInvalidToken},
		{name: "garbage", token: "not-a-jwt", wantErr: ErrInvalidToken, validatorErr: sessionvalidator.ErrInvalidToken},
	}
	for _, testCase := range testCases {
		request := httptest.NewRequest(http.MethodGet, "/", nil)
		if testCase.token != "" {
			request.AddCookie(&http.Cookie{Name: testCookieName, Value: testCase.token})
		}
		_, err := provider.Authenticate(request)
		assert.True(test, errors.Is(err, testCase.wantErr), "%s: got %v", testCase.name, err)
		if testCase.validatorErr != nil {
			assert.True(test, errors.Is(err, testCase.validatorErr), "%s: got %v", testCase.name, err)
		}
	}
}

func TestAuthenticatePrefersCookieOverBearer(test *testing.T) {
	test.Parallel()
	provider := newTestProvider(test)
	request := httptest.NewRequest(http.MethodGet, "/reservations/mine", nil)
	request.AddCookie(&http.Cookie{Name: testCookieName, Value: signToken(test, "cookie-payer", testIssuer, testSigningKey, time.Hour)})
	request.Header.Set("Authorization", "Bearer "+signToken(test, "header-payer", testIssuer, testSigningKey, time.Hour))

	claims, err := provider.Authenticate(request)
	require.NoError(test, err)
	assert.Equal(test, "cookie-payer", claims.GetUserID())
}

func TestGinMiddlewareSetsPayer(test *testing.T) {
	test.Parallel()
	gin.SetMode(gin.TestMode)
	provider := newTestProvider(test)
	router := gin.New()
	router.Use(provider.GinMiddleware())
	router.GET("/whoami", func(ctx *gin.Context) {
		payerID, ok := PayerFrom(ctx)
		if !ok {
			ctx.String(http.StatusOK, "anonymous")
			return
		}
		ctx.String(http.StatusOK, payerID.String())
	})

	anonymous := httptest.NewRecorder()
	router.ServeHTTP(anonymous, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	assert.Equal(test, "anonymous", anonymous.Body.String())

	request := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	request.AddCookie(&http.Cookie{Name: testCookieName, Value: signToken(test, "payer-9", testIssuer, testSigningKey, time.Hour)})
	authenticated := httptest.NewRecorder()
	router.ServeHTTP(authenticated, request)
	assert.Equal(test, "payer-9", authenticated.Body.String())
}

func TestNewProviderValidation(test *testing.T) {
	test.Parallel()
	_, err := NewProvider(Config{Issuer: testIssuer, CookieName: testCookieName})
	assert.ErrorIs(test, err, ErrInvalidConfig)
	_, err = NewProvider(Config{SigningKey: []byte(testSigningKey), CookieName: testCookieName})
	assert.ErrorIs(test, err, ErrInvalidConfig)
	_, err = NewProvider(Config{SigningKey: []byte(testSigningKey), Issuer: testIssuer})
	assert.ErrorIs(test, err, ErrInvalidConfig)
}

func newTestProvider(test *testing.T) *Provider {
	test.Helper()
	provider, err := NewProvider(Config{SigningKey: []byte(testSigningKey), Issuer: testIssuer, CookieName: testCookieName})
	require.NoError(test, err)
	return provider
}

func signToken(test *testing.T, userID string, issuer string, key string, ttl time.Duration) string {
	test.Helper()
	claims := &sessionvalidator.Claims{
		UserID:          userID,
		UserEmail:       userID + "@example.com",
		UserDisplayName: "Test Payer",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(time.Now().UTC().Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(key))
	require.NoError(test, err)
	return signed
}
