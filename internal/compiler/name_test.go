package compiler

import (
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	t.Run("accepts valid names", func(t *testing.T) {
		valid := []string{
			"welcome-message",
			"ban",
			"giveaway_entry",
			"cmd123",
			"8ball",
			"공지사항",   // Hangul
			"公告",     // Han
			"привет", // lowercase Cyrillic via Ll
			"a-b_c",
			strings.Repeat("a", 32),
		}
		for _, name := range valid {
			if err := ValidateName(name); err != nil {
				t.Errorf("ValidateName(%q) = %v, want nil", name, err)
			}
		}
	})

	t.Run("rejects invalid names", func(t *testing.T) {
		invalid := []string{
			"",
			"ban user", // space not in the allowed set
			strings.Repeat("a", 33),
			"double__underscore",
			"-leading",
			"trailing-",
			"_leading",
			"trailing_",
			"excla!m",
			"semi;colon",
			"dot.name",
		}
		for _, name := range invalid {
			if err := ValidateName(name); err == nil {
				t.Errorf("ValidateName(%q) = nil, want error", name)
			}
		}
	})

	t.Run("rejection carries the fixed rules message", func(t *testing.T) {
		err := ValidateName("ban user")
		verr, ok := err.(*ValidationError)
		if !ok {
			t.Fatalf("expected *ValidationError, got %T", err)
		}
		if verr.Message != NameRulesMessage {
			t.Errorf("expected NameRulesMessage, got %q", verr.Message)
		}
	})
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Welcome-Message", "welcome-message"},
		{"  ban  ", "ban"},
		{"Ban User", "ban user"},
		{"공지사항", "공지사항"},
	}

	for _, tt := range tests {
		if got := NormalizeName(tt.in); got != tt.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
