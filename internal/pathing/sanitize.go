// Package pathing turns case metadata into safe folder names and lays out the
// default three-level forensic hierarchy.
package pathing

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/conneroisu/casefiler/internal/errors"
	"golang.org/x/text/unicode/norm"
)

const (
	maxComponentBytes = 255
	maxExtensionRunes = 50
)

var (
	reservedNames = regexp.MustCompile(`(?i)^(CON|PRN|AUX|NUL|COM[1-9]|LPT[1-9])(\..*)?$`)

	invalidChars = strings.NewReplacer(
		"<", "_", ">", "_", ":", "_", `"`, "_", "|", "_",
		"?", "_", "*", "_", "/", "_", `\`, "_",
	)
)

// SanitizeComponent makes s safe to use as a single path component on every
// supported platform. It is idempotent.
func SanitizeComponent(s string) string {
	if s == "" {
		return "_"
	}

	// Strip before normalizing so a removed control character cannot leave
	// a base letter and combining mark uncomposed.
	s = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)

	s = norm.NFKC.String(s)

	s = invalidChars.Replace(s)

	s = strings.Trim(s, " .")

	if reservedNames.MatchString(s) {
		s = "_" + s
	}

	s = truncate(s)

	if s == "" || s == "." {
		return "_"
	}
	return s
}

// truncate shortens s to the component byte limit, keeping a short extension.
func truncate(s string) string {
	if len(s) <= maxComponentBytes {
		return s
	}

	ext := filepath.Ext(s)
	if ext == s || utf8.RuneCountInString(ext) > maxExtensionRunes {
		ext = ""
	}
	stem := strings.TrimSuffix(s, ext)

	budget := maxComponentBytes - len(ext)
	for len(stem) > budget {
		_, size := utf8.DecodeLastRuneInString(stem)
		stem = stem[:len(stem)-size]
	}

	out := strings.TrimRight(stem, " .") + ext
	return strings.Trim(out, " .")
}

// ValidateDestination ensures dest resolves inside base and returns the
// cleaned absolute destination.
func ValidateDestination(dest, base string) (string, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", errors.ErrInvalidPath(base)
	}
	absDest, err := filepath.Abs(dest)
	if err != nil {
		return "", errors.ErrInvalidPath(dest)
	}

	rel, err := filepath.Rel(absBase, absDest)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", errors.ErrPathTraversal(dest).
			WithContext("base", absBase).
			WithComponent("pathing")
	}

	return absDest, nil
}

// JoinComponents sanitizes each component and joins them.
func JoinComponents(components ...string) string {
	clean := make([]string, 0, len(components))
	for _, c := range components {
		clean = append(clean, SanitizeComponent(c))
	}
	return filepath.Join(clean...)
}
