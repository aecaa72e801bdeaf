package crypto

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"
)

func testKey(b byte) string {
	return base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{b}, 32))
}

func TestNewSealerKeyValidation(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid 32-byte key", testKey(7), false},
		{"empty key", "", true},
		{"not base64", "!!!not-base64!!!", true},
		{"too short", base64.StdEncoding.EncodeToString([]byte("shortkey")), true},
		{"too long", base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{1}, 48)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSealer(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewSealer() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSealOpenRoundtrip(t *testing.T) {
	s, err := NewSealer(testKey(7))
	if err != nil {
		t.Fatal(err)
	}
	for _, plaintext := range []string{
		"refresh-token-value",
		"short",
		strings.Repeat("long", 500),
		"unicode: ünïcödé ✓",
	} {
		sealed, err := s.Seal(plaintext)
		if err != nil {
			t.Fatalf("Seal(%q) error = %v", plaintext, err)
		}
		if sealed == plaintext {
			t.Errorf("Seal(%q) returned plaintext", plaintext)
		}
		opened, err := s.Open(sealed)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if opened != plaintext {
			t.Errorf("roundtrip = %q, want %q", opened, plaintext)
		}
	}
}

func TestSealEmptyPassthrough(t *testing.T) {
	s, _ := NewSealer(testKey(7))
	sealed, err := s.Seal("")
	if err != nil || sealed != "" {
		t.Errorf("Seal(\"\") = %q, %v, want empty, nil", sealed, err)
	}
	opened, err := s.Open("")
	if err != nil || opened != "" {
		t.Errorf("Open(\"\") = %q, %v, want empty, nil", opened, err)
	}
}

func TestSealNonDeterministic(t *testing.T) {
	s, _ := NewSealer(testKey(7))
	a, _ := s.Seal("same value")
	b, _ := s.Seal("same value")
	if a == b {
		t.Error("two seals of the same plaintext are identical (nonce reuse?)")
	}
}

func TestOpenRejectsTamperedAndWrongKey(t *testing.T) {
	s, _ := NewSealer(testKey(7))
	sealed, err := s.Seal("secret")
	if err != nil {
		t.Fatal(err)
	}

	// flip one byte of the ciphertext
	raw, _ := base64.StdEncoding.DecodeString(sealed)
	raw[len(raw)-1] ^= 0xFF
	if _, err := s.Open(base64.StdEncoding.EncodeToString(raw)); err == nil {
		t.Error("Open(tampered) = nil error, want error")
	}

	other, _ := NewSealer(testKey(8))
	if _, err := other.Open(sealed); err == nil {
		t.Error("Open() with wrong key = nil error, want error")
	}

	if _, err := s.Open("not-base64!!!"); err == nil {
		t.Error("Open(garbage) = nil error, want error")
	}
	if _, err := s.Open(base64.StdEncoding.EncodeToString([]byte("tiny"))); err == nil {
		t.Error("Open(too short) = nil error, want error")
	}
}
