package export

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		maxLen int
		want   string
	}{
		{"plain", "beach day 2024", 0, "beach day 2024"},
		{"allowlist kept", "Clip (1) - take_2, final.mp4", 0, "Clip (1) - take_2, final.mp4"},
		{"control characters dropped", " tab\there\nline\x00 ", 0, "tabhereline"},
		{"reserved characters replaced", `clip:"one"?*`, 0, "clip__one___"},
		{"path separators replaced", `a/b\c`, 0, "a_b_c"},
		{"diacritics folded", "Vacaciones en España", 0, "Vacaciones en Espana"},
		{"accents folded", "Crème brûlée", 0, "Creme brulee"},
		{"ligature decomposed", "ﬁnal cut", 0, "final cut"},
		{"leading and trailing dots trimmed", "..hidden..", 0, "hidden"},
		{"truncated by runes", "ñandú ñandú ñandú", 5, "nandu"},
		{"truncation trims space", "abcd efgh", 5, "abcd"},
		{"empty", "", 10, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeName(tt.in, tt.maxLen); got != tt.want {
				t.Errorf("SanitizeName(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestValidateOutputDir(t *testing.T) {
	base := t.TempDir()
	file := filepath.Join(base, "notes.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	tests := []struct {
		name    string
		dir     string
		wantErr bool
	}{
		{"existing directory", base, false},
		{"empty", "  ", true},
		{"missing", filepath.Join(base, "missing"), true},
		{"traversal", base + "/../etc", true},
		{"unclean", base + "/./", true},
		{"regular file", file, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOutputDir(tt.dir)
			if tt.wantErr {
				if !errors.Is(err, ErrBadOutputDir) {
					t.Errorf("ValidateOutputDir(%q) error = %v, want ErrBadOutputDir", tt.dir, err)
				}
				return
			}
			if err != nil {
				t.Errorf("ValidateOutputDir(%q) error = %v, want nil", tt.dir, err)
			}
		})
	}
}
