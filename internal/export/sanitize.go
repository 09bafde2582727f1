package export

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// SanitizeName turns s into a safe file name: compatibility-decomposed,
// diacritics stripped, control characters dropped and anything outside a
// small allowlist replaced with '_'. maxLen counts runes; 0 means no limit.
func SanitizeName(s string, maxLen int) string {
	folded, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	for _, r := range folded {
		if unicode.IsControl(r) {
			continue
		}
		if isAllowedNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	cleaned := strings.Trim(strings.TrimSpace(b.String()), ".")
	if maxLen > 0 {
		if r := []rune(cleaned); len(r) > maxLen {
			cleaned = strings.TrimSpace(string(r[:maxLen]))
		}
	}
	return cleaned
}

func isAllowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case ' ', '-', '_', '.', ',', '(', ')':
		return true
	default:
		return false
	}
}

// ErrBadOutputDir wraps every rejection from ValidateOutputDir.
var ErrBadOutputDir = errors.New("invalid output directory")

// ValidateOutputDir checks that dir is a clean, existing directory.
func ValidateOutputDir(dir string) error {
	switch {
	case strings.TrimSpace(dir) == "":
		return fmt.Errorf("%w: empty path", ErrBadOutputDir)
	case slices.Contains(strings.Split(filepath.ToSlash(dir), "/"), ".."):
		return fmt.Errorf("%w: %q escapes its parent", ErrBadOutputDir, dir)
	case filepath.Clean(dir) != dir:
		return fmt.Errorf("%w: %q is not a clean path", ErrBadOutputDir, dir)
	}

	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %q does not exist", ErrBadOutputDir, dir)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadOutputDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %q is not a directory", ErrBadOutputDir, dir)
	}
	return nil
}
