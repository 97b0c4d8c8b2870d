package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggnetworks/hotspot-billing-backend/internal/config"
)

func TestValidPhoneNumber(t *testing.T) {
	valid := []string{"0742000111", "0652000111", "255742000111", "255652000111"}
	for _, n := range valid {
		assert.True(t, ValidPhoneNumber(n), n)
	}

	invalid := []string{"", "12345", "0842000111", "25574200011", "2557420001112", "+255742000111", "074200011a"}
	for _, n := range invalid {
		assert.False(t, ValidPhoneNumber(n), n)
	}
}

func TestNormalizePhoneNumber(t *testing.T) {
	assert.Equal(t, "255742000111", NormalizePhoneNumber("0742000111"))
	assert.Equal(t, "255742000111", NormalizePhoneNumber("255742000111"))
}

func TestNormalizeMac(t *testing.T) {
	assert.Equal(t, "AA:BB:CC:DD:EE:01", NormalizeMac("aa:bb:cc:dd:ee:01"))
	assert.Equal(t, "AA:BB:CC:DD:EE:01", NormalizeMac("AA-BB-CC-DD-EE-01"))
}

func TestValidMac(t *testing.T) {
	assert.True(t, ValidMac("AA:BB:CC:DD:EE:01"))
	assert.False(t, ValidMac("aa:bb:cc:dd:ee:01"), "lower case must be normalized first")
	assert.False(t, ValidMac("AA:BB:CC:DD:EE"))
	assert.False(t, ValidMac("not-a-mac"))
}

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(6)
	require.NoError(t, err)
	assert.Len(t, code, 6)
	for _, c := range code {
		assert.True(t, strings.ContainsRune(codeAlphabet, c))
	}

	_, err = GenerateCode(0)
	assert.Error(t, err)

	// Practically collision-free at this length
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		c, err := GenerateCode(6)
		require.NoError(t, err)
		seen[c] = struct{}{}
	}
	assert.Len(t, seen, 100)
}

func TestJWTRoundTrip(t *testing.T) {
	cfg := &config.Config{JWT: config.JWTConfig{Secret: "test-secret", ExpiresIn: 3600}}

	token, err := GenerateJWT("operator-1", "admin", cfg)
	require.NoError(t, err)

	claims, err := ValidateJWT(token, cfg)
	require.NoError(t, err)
	assert.Equal(t, "operator-1", claims["user_id"])
	assert.Equal(t, "admin", claims["role"])

	wrong := &config.Config{JWT: config.JWTConfig{Secret: "other-secret"}}
	_, err = ValidateJWT(token, wrong)
	assert.Error(t, err)
}
