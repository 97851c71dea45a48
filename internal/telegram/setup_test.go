package telegram

import (
	"testing"

	"github.com/go-telegram/bot"
)

func TestTokenPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		token string
		want  string
	}{
		{"Regular token", "123456789:AAdummytokenvalue", "12345678..."},
		{"Exactly eight characters", "12345678", "12345678..."},
		{"Short token", "short", "***"},
		{"Single character", "x", "***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tokenPrefix(tt.token); got != tt.want {
				t.Errorf("tokenPrefix(%q) = %q, want %q", tt.token, got, tt.want)
			}
		})
	}
}

func TestNewTelegramBot(t *testing.T) {
	t.Parallel()

	if _, err := NewTelegramBot("", nil); err == nil {
		t.Error("NewTelegramBot with empty token succeeded, want error")
	}

	// A syntactically odd short token must not panic during setup; the
	// token is only verified against the API later.
	b, err := NewTelegramBot("short", nil, bot.WithSkipGetMe())
	if err != nil {
		t.Fatalf("NewTelegramBot with short token: %v", err)
	}
	if b == nil {
		t.Fatal("NewTelegramBot returned nil bot")
	}
}
