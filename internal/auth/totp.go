package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// TOTP parameters understood by every common authenticator app
const (
	totpPeriod      = 30
	totpDigits      = 6
	totpSkew        = 1
	totpSecretBytes = 20
)

var totpEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateTOTPSecret returns a random base32 secret
func GenerateTOTPSecret() (string, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate totp secret: %w", err)
	}
	return totpEncoding.EncodeToString(raw), nil
}

// TOTPProvisionURL builds the otpauth:// URL an authenticator app imports
func TOTPProvisionURL(issuer, account, secret string) string {
	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", issuer)
	v.Set("algorithm", "SHA1")
	v.Set("digits", fmt.Sprint(totpDigits))
	v.Set("period", fmt.Sprint(totpPeriod))
	return "otpauth://totp/" + url.PathEscape(issuer+":"+account) + "?" + v.Encode()
}

// VerifyTOTP checks a code against the secret, accepting one step of drift
func VerifyTOTP(secret, code string, now time.Time) (bool, error) {
	code = strings.TrimSpace(code)
	if len(code) != totpDigits || strings.Trim(code, "0123456789") != "" {
		return false, nil
	}

	key, err := decodeTOTPSecret(secret)
	if err != nil {
		return false, err
	}

	base := now.Unix() / totpPeriod
	for step := int64(-totpSkew); step <= totpSkew; step++ {
		counter := base + step
		if counter < 0 {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(hotp(key, uint64(counter))), []byte(code)) == 1 {
			return true, nil
		}
	}
	return false, nil
}

// TOTPCode returns the code for the given instant
func TOTPCode(secret string, at time.Time) (string, error) {
	key, err := decodeTOTPSecret(secret)
	if err != nil {
		return "", err
	}
	return hotp(key, uint64(at.Unix()/totpPeriod)), nil
}

func decodeTOTPSecret(secret string) ([]byte, error) {
	secret = strings.ToUpper(strings.TrimRight(strings.TrimSpace(secret), "="))
	if secret == "" {
		return nil, errors.New("empty totp secret")
	}
	key, err := totpEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("invalid totp secret: %w", err)
	}
	return key, nil
}

func hotp(key []byte, counter uint64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	return fmt.Sprintf("%0*d", totpDigits, bin%1_000_000)
}
