package push

import (
	"encoding/base64"
	"testing"

	"github.com/dukerupert/stride/internal/model"
)

func TestGenerateVAPIDKeys(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate VAPID keys: %v", err)
	}

	// Public key should be base64url-encoded, 65 bytes uncompressed P-256 point
	pubBytes, err := base64.RawURLEncoding.DecodeString(pub)
	if err != nil {
		t.Fatalf("decode public key: %v", err)
	}
	if len(pubBytes) != 65 {
		t.Errorf("public key length = %d, want 65", len(pubBytes))
	}

	// Private key should be base64url-encoded, 32 bytes P-256 scalar
	privBytes, err := base64.RawURLEncoding.DecodeString(priv)
	if err != nil {
		t.Fatalf("decode private key: %v", err)
	}
	if len(privBytes) != 32 {
		t.Errorf("private key length = %d, want 32", len(privBytes))
	}

	pub2, _, _ := GenerateVAPIDKeys()
	if pub == pub2 {
		t.Error("expected different keys on second generation")
	}
}

func TestConfigEnabled(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want bool
	}{
		{"both keys", Config{VAPIDPublicKey: "pub", VAPIDPrivateKey: "priv"}, true},
		{"missing private", Config{VAPIDPublicKey: "pub"}, false},
		{"missing public", Config{VAPIDPrivateKey: "priv"}, false},
		{"empty", Config{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Enabled(); got != tt.want {
				t.Errorf("Enabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPayloadFor(t *testing.T) {
	n := model.Notification{
		Title: "New message from Ana",
		Body:  "See you at spin class",
		Icon:  "/icon-192.png",
		Tag:   "message-7",
		Data:  map[string]string{"url": "/messages/3"},
	}
	p := PayloadFor(n)
	if p.Title != n.Title || p.Body != n.Body || p.Tag != n.Tag || p.Icon != n.Icon {
		t.Errorf("payload = %+v, want fields of %+v", p, n)
	}
	if p.Data["url"] != "/messages/3" {
		t.Errorf("data url = %q, want %q", p.Data["url"], "/messages/3")
	}
}

func TestTopicFor(t *testing.T) {
	if got := topicFor(""); got != "" {
		t.Errorf("topicFor(\"\") = %q, want empty", got)
	}
	if got := topicFor("message-12"); got == "" || len(got) > 32 {
		t.Errorf("topicFor(message-12) = %q, want 1..32 chars", got)
	}
	long := topicFor("event-1234567890123456789012345678901234567890")
	if len(long) != 32 {
		t.Errorf("long topic length = %d, want 32", len(long))
	}
}
