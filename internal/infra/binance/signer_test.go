package binance

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
)

func TestSigner_Sign(t *testing.T) {
	s := NewSigner("access", "secret")

	signed := s.Sign("symbol=BTCUSDT&side=BUY")

	if !strings.Contains(signed, "symbol=BTCUSDT&side=BUY&timestamp=") {
		t.Fatalf("signed query missing original params: %s", signed)
	}

	idx := strings.LastIndex(signed, "&signature=")
	if idx == -1 {
		t.Fatalf("signed query missing signature: %s", signed)
	}

	payload := signed[:idx]
	sig := signed[idx+len("&signature="):]

	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte(payload))
	want := hex.EncodeToString(mac.Sum(nil))

	if sig != want {
		t.Errorf("signature mismatch: got %s, want %s", sig, want)
	}
}

func TestSigner_SignEmptyQuery(t *testing.T) {
	s := NewSigner("access", "secret")

	signed := s.Sign("")
	if !strings.HasPrefix(signed, "timestamp=") {
		t.Errorf("empty query should start with timestamp: %s", signed)
	}
}

func TestSigner_Wipe(t *testing.T) {
	s := NewSigner("access", "secret")
	s.Wipe()

	for _, b := range s.accessKey {
		if b != 0 {
			t.Fatal("access key not wiped")
		}
	}
	for _, b := range s.secretKey {
		if b != 0 {
			t.Fatal("secret key not wiped")
		}
	}
}
