package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

const testSecret = "test-secret"

func signVendorToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	assert.NoError(t, err)
	return signed
}

func runAuth(t *testing.T, header string) (*httptest.ResponseRecorder, *gin.Context) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/api/vendor/pending-requests", nil)
	if header != "" {
		c.Request.Header.Set("Authorization", header)
	}
	VendorAuth(testSecret)(c)
	return w, c
}

func TestVendorAuth_ValidToken(t *testing.T) {
	token := signVendorToken(t, testSecret, jwt.MapClaims{
		"vendor_id": 7,
		"exp":       time.Now().Add(time.Hour).Unix(),
	})

	w, c := runAuth(t, "Bearer "+token)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(7), vendorID(c))
}

func TestVendorAuth_MissingHeader(t *testing.T) {
	w, _ := runAuth(t, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVendorAuth_WrongSecret(t *testing.T) {
	token := signVendorToken(t, "other-secret", jwt.MapClaims{
		"vendor_id": 7,
		"exp":       time.Now().Add(time.Hour).Unix(),
	})

	w, _ := runAuth(t, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVendorAuth_ExpiredToken(t *testing.T) {
	token := signVendorToken(t, testSecret, jwt.MapClaims{
		"vendor_id": 7,
		"exp":       time.Now().Add(-time.Hour).Unix(),
	})

	w, _ := runAuth(t, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVendorAuth_NoVendorClaim(t *testing.T) {
	token := signVendorToken(t, testSecret, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	w, _ := runAuth(t, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
