package util

import "testing"

func TestStripControl(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "hello", "hello"},
		{"newline to space", "a\nb", "a b"},
		{"tab to space", "a\tb", "a b"},
		{"bell removed", "a\x07b", "ab"},
		{"zero width removed", "a\u200bb", "ab"},
		{"unicode kept", "héllo ✓", "héllo ✓"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripControl(tt.input); got != tt.expected {
				t.Errorf("StripControl(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input    string
		max      int
		expected string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 3, "hel"},
		{"héllo", 2, "hé"},
		{"hello", 0, ""},
		{"", 3, ""},
	}
	for _, tt := range tests {
		if got := Truncate(tt.input, tt.max); got != tt.expected {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.input, tt.max, got, tt.expected)
		}
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"unchanged", "alice", "alice"},
		{"trimmed", "  alice  ", "alice"},
		{"collapsed", "big   bob", "big bob"},
		{"empty", "", DefaultName},
		{"only control", "\x00\x01", DefaultName},
		{"too long", "abcdefghijklmnopqrstuvwxyz", "abcdefghijklmnopqrstuvwx"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeName(tt.input); got != tt.expected {
				t.Errorf("SanitizeName(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSanitizeChat(t *testing.T) {
	if got := SanitizeChat("  gl\nhf  "); got != "gl hf" {
		t.Errorf("SanitizeChat = %q, want %q", got, "gl hf")
	}
	if got := SanitizeChat("\x00"); got != "" {
		t.Errorf("SanitizeChat = %q, want empty", got)
	}
	long := make([]byte, MaxChatLength+50)
	for i := range long {
		long[i] = 'a'
	}
	if got := SanitizeChat(string(long)); len(got) != MaxChatLength {
		t.Errorf("len(SanitizeChat) = %d, want %d", len(got), MaxChatLength)
	}
}
