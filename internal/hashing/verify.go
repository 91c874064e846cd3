package hashing

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Status is the outcome of comparing one source file.
type Status string

const (
	StatusMatch         Status = "MATCH"
	StatusMismatch      Status = "MISMATCH"
	StatusMissingTarget Status = "MISSING_TARGET"
	StatusAmbiguous     Status = "AMBIGUOUS"
)

// MatchType records how the target was paired with the source.
type MatchType string

const (
	MatchByPath MatchType = "relative_path"
	MatchByName MatchType = "filename"
	MatchNone   MatchType = "none"
)

// Verification pairs a source digest with its target.
type Verification struct {
	Source    Result
	Target    *Result
	Status    Status
	MatchType MatchType
	Notes     string
}

// VerifySummary counts verification outcomes.
type VerifySummary struct {
	Total         int `json:"total"`
	Matched       int `json:"matched"`
	Mismatched    int `json:"mismatched"`
	MissingTarget int `json:"missing_target"`
	Ambiguous     int `json:"ambiguous"`
}

// Passed reports whether every source matched.
func (s VerifySummary) Passed() bool {
	return s.Total > 0 && s.Matched == s.Total
}

// copySuffix matches the decorations file managers add to a copied root
// folder: "Evidence - Copy", "Evidence - Copy (2)", "Evidence (3)".
var copySuffix = regexp.MustCompile(`(?i)( - copy( \(\d+\))?| \(\d+\))$`)

// normalizeRel folds case and separators and strips copy decorations from the
// root folder so a renamed copy still pairs by path.
func normalizeRel(rel string) string {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) > 1 {
		parts[0] = copySuffix.ReplaceAllString(parts[0], "")
	}
	return strings.ToLower(strings.Join(parts, "/"))
}

// Verify pairs each source with a target in three tiers: identical normalized
// relative path, then a unique file name, otherwise the source is reported
// ambiguous or missing.
func Verify(sources, targets []Result) ([]Verification, VerifySummary) {
	byPath := make(map[string]int, len(targets))
	byName := make(map[string][]int, len(targets))
	for i, t := range targets {
		byPath[normalizeRel(t.RelativePath)] = i
		name := strings.ToLower(filepath.Base(t.Path))
		byName[name] = append(byName[name], i)
	}
	used := make(map[int]bool, len(targets))

	out := make([]Verification, 0, len(sources))

	pair := func(src Result, ti int, mt MatchType) Verification {
		used[ti] = true
		t := targets[ti]
		v := Verification{Source: src, Target: &t, MatchType: mt}
		switch {
		case src.Err != nil:
			v.Status, v.Notes = StatusMismatch, "source hash failed: "+src.Err.Error()
		case t.Err != nil:
			v.Status, v.Notes = StatusMismatch, "target hash failed: "+t.Err.Error()
		case src.Hash == t.Hash:
			v.Status = StatusMatch
		default:
			v.Status = StatusMismatch
			v.Notes = fmt.Sprintf("hash mismatch: %s... != %s...", short(src.Hash), short(t.Hash))
		}
		return v
	}

	for _, src := range sources {
		if ti, ok := byPath[normalizeRel(src.RelativePath)]; ok && !used[ti] {
			out = append(out, pair(src, ti, MatchByPath))
			continue
		}

		var free []int
		for _, ti := range byName[strings.ToLower(filepath.Base(src.Path))] {
			if !used[ti] {
				free = append(free, ti)
			}
		}
		switch len(free) {
		case 1:
			out = append(out, pair(src, free[0], MatchByName))
		case 0:
			out = append(out, Verification{
				Source: src, Status: StatusMissingTarget, MatchType: MatchNone,
				Notes: "no matching target file for " + filepath.Base(src.Path),
			})
		default:
			out = append(out, Verification{
				Source: src, Status: StatusAmbiguous, MatchType: MatchNone,
				Notes: fmt.Sprintf("%d target files share the name %s", len(free), filepath.Base(src.Path)),
			})
		}
	}

	return out, Summarize(out)
}

// Summarize counts results by status.
func Summarize(results []Verification) VerifySummary {
	var sum VerifySummary
	for _, v := range results {
		sum.Total++
		switch v.Status {
		case StatusMatch:
			sum.Matched++
		case StatusMismatch:
			sum.Mismatched++
		case StatusMissingTarget:
			sum.MissingTarget++
		case StatusAmbiguous:
			sum.Ambiguous++
		}
	}
	return sum
}

func short(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}
