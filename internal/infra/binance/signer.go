package binance

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Signer handles Binance USDT-M futures API authentication.
// Keys are stored as []byte to allow memory wiping.
type Signer struct {
	accessKey []byte
	secretKey []byte
}

// NewSigner creates a new signer.
func NewSigner(accessKey, secretKey string) *Signer {
	return &Signer{
		accessKey: []byte(accessKey),
		secretKey: []byte(secretKey),
	}
}

// APIKey returns the access key for the X-MBX-APIKEY header.
func (s *Signer) APIKey() string {
	return string(s.accessKey)
}

// Sign appends timestamp and HMAC-SHA256 signature to a query string,
// returning the final query to send.
func (s *Signer) Sign(query string) string {
	if query != "" {
		query += "&"
	}
	query += fmt.Sprintf("timestamp=%d", time.Now().UnixMilli())

	mac := hmac.New(sha256.New, s.secretKey)
	mac.Write([]byte(query))
	sig := hex.EncodeToString(mac.Sum(nil))

	return query + "&signature=" + sig
}

// Wipe clears the keys from memory.
func (s *Signer) Wipe() {
	if s == nil {
		return
	}
	wipeSlice(s.accessKey)
	wipeSlice(s.secretKey)
}

func wipeSlice(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
