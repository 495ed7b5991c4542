// Package report renders the downloadable plain-text artifact for a
// completed analysis. The output is deterministic for a given result.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aridetect/aridetect/internal/domain/analysis"
)

const disclaimer = "This is an AI-generated report. Please consult with a medical professional for final diagnosis."

// Render builds the report text from the result's fields.
func Render(res *analysis.Result) string {
	var b strings.Builder
	b.WriteString("ARI DETECTION SYSTEM - MEDICAL REPORT\n\n")
	fmt.Fprintf(&b, "Analysis ID: %s\n", res.ID)
	fmt.Fprintf(&b, "Patient: %s\n", res.PatientName)
	fmt.Fprintf(&b, "Date: %s\n\n", res.CreatedAt.Format("2006-01-02"))
	b.WriteString("DIAGNOSIS:\n")
	fmt.Fprintf(&b, "%s\n\n", res.Prediction)
	fmt.Fprintf(&b, "Confidence: %s\n\n", analysis.FormatConfidence(res.Confidence))
	b.WriteString("MEDICAL REPORT:\n")
	fmt.Fprintf(&b, "%s\n\n", res.Report)
	b.WriteString(disclaimer + "\n")
	return b.String()
}

// Filename returns the artifact name, "<prefix>_<analysis-id>.txt".
func Filename(prefix, analysisID string) string {
	return fmt.Sprintf("%s_%s.txt", prefix, analysisID)
}

// Write renders the report and saves it under dir, returning the full path.
func Write(dir, prefix string, res *analysis.Result) (string, error) {
	if res.ID == "" {
		return "", fmt.Errorf("analysis result has no identifier")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(dir, Filename(prefix, res.ID))
	if err := os.WriteFile(path, []byte(Render(res)), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
