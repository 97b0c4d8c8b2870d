package utils

import (
	"crypto/rand"
	"errors"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ggnetworks/hotspot-billing-backend/internal/config"
)

// codeAlphabet is the character set for voucher codes. Ambiguous characters
// are acceptable here because codes are delivered by SMS, not read aloud.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var (
	// Tanzanian MSISDNs: local 0XXXXXXXXX or international 255XXXXXXXXX
	phonePattern = regexp.MustCompile(`^(0[67]\d{8}|255[67]\d{8})$`)
	macPattern   = regexp.MustCompile(`^([0-9A-F]{2}:){5}[0-9A-F]{2}$`)
)

// ValidPhoneNumber reports whether msisdn is a well-formed Tanzanian number
func ValidPhoneNumber(msisdn string) bool {
	return phonePattern.MatchString(msisdn)
}

// NormalizePhoneNumber converts a local-format number to international form
func NormalizePhoneNumber(msisdn string) string {
	if strings.HasPrefix(msisdn, "0") {
		return "255" + msisdn[1:]
	}
	return msisdn
}

// NormalizeMac upper-cases a MAC address and converts dashes to colons
func NormalizeMac(mac string) string {
	return strings.ToUpper(strings.ReplaceAll(mac, "-", ":"))
}

// ValidMac reports whether mac is a well-formed hardware address.
// Call NormalizeMac first.
func ValidMac(mac string) bool {
	return macPattern.MatchString(mac)
}

// GenerateCode generates a random code of the given length from the voucher
// alphabet using a cryptographically strong source
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("code length must be positive")
	}

	var sb strings.Builder
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		sb.WriteByte(codeAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

// GenerateJWT generates a JWT token
func GenerateJWT(userID string, role string, cfg *config.Config) (string, error) {
	// Create the token
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     time.Now().Add(time.Second * time.Duration(cfg.JWT.ExpiresIn)).Unix(),
	})

	// Sign the token with the secret
	tokenString, err := token.SignedString([]byte(cfg.JWT.Secret))
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ValidateJWT validates a JWT token
func ValidateJWT(tokenString string, cfg *config.Config) (jwt.MapClaims, error) {
	// Parse the token
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(cfg.JWT.Secret), nil
	})

	if err != nil {
		return nil, err
	}

	// Check if the token is valid
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
