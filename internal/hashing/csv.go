package hashing

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

// VerificationHeader is the column row of a verification report.
var VerificationHeader = []string{
	"Source File Path",
	"Target File Path",
	"Relative Path",
	"Size",
	"Source Hash (SHA256)",
	"Target Hash (SHA256)",
	"Verification Status",
	"Match Type",
	"Notes",
}

// HashHeader is the column row of a per-job hash report.
var HashHeader = []string{
	"Filename",
	"Source Path",
	"Destination Path",
	"Source Hash (SHA-256)",
	"Destination Hash (SHA-256)",
	"Verification Status",
}

// ReportMeta is written as comment lines above the verification table.
type ReportMeta struct {
	GeneratedAt time.Time
	SourceRoot  string
	TargetRoot  string
	Technician  string
}

// WriteVerificationCSV writes results with a "#" metadata preamble followed by
// the summary counts and one row per source file.
func WriteVerificationCSV(w io.Writer, results []Verification, meta ReportMeta) error {
	sum := Summarize(results)

	if meta.GeneratedAt.IsZero() {
		meta.GeneratedAt = time.Now()
	}
	preamble := []string{
		"# Hash Verification Report",
		"# Generated: " + meta.GeneratedAt.Format(time.RFC3339),
		"# Algorithm: " + Algorithm,
	}
	if meta.SourceRoot != "" {
		preamble = append(preamble, "# Source: "+meta.SourceRoot)
	}
	if meta.TargetRoot != "" {
		preamble = append(preamble, "# Target: "+meta.TargetRoot)
	}
	if meta.Technician != "" {
		preamble = append(preamble, "# Technician: "+meta.Technician)
	}
	preamble = append(preamble, fmt.Sprintf(
		"# Total: %d, Matched: %d, Mismatched: %d, Missing: %d, Ambiguous: %d",
		sum.Total, sum.Matched, sum.Mismatched, sum.MissingTarget, sum.Ambiguous))
	for _, line := range preamble {
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return err
		}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(VerificationHeader); err != nil {
		return err
	}
	for _, v := range results {
		var targetPath, targetHash string
		if v.Target != nil {
			targetPath, targetHash = v.Target.Path, v.Target.Hash
		}
		row := []string{
			v.Source.Path,
			targetPath,
			v.Source.RelativePath,
			strconv.FormatInt(v.Source.Size, 10),
			v.Source.Hash,
			targetHash,
			string(v.Status),
			string(v.MatchType),
			v.Notes,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// CopyRecord is one copied file as seen by the hash report.
type CopyRecord struct {
	SourcePath string
	DestPath   string
	SourceHash string
	DestHash   string
	Verified   bool
}

// WriteHashCSV writes one row per copied file, sorted by destination path.
func WriteHashCSV(w io.Writer, records []CopyRecord) error {
	sorted := make([]CopyRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].DestPath < sorted[j].DestPath })

	cw := csv.NewWriter(w)
	if err := cw.Write(HashHeader); err != nil {
		return err
	}
	for _, r := range sorted {
		status := "FAILED"
		if r.Verified && r.SourceHash != "" && r.SourceHash == r.DestHash {
			status = "PASSED"
		}
		row := []string{
			filepath.Base(r.DestPath),
			r.SourcePath,
			r.DestPath,
			r.SourceHash,
			r.DestHash,
			status,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
