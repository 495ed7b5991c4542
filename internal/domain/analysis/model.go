// Package analysis models a single X-ray inference cycle: the transient
// request, the returned result, and the workflow controller that drives the
// submission lifecycle.
package analysis

import (
	"fmt"
	"time"
)

// Request is the transient input to one analysis cycle. It lives in memory
// only and is discarded once the corresponding result or error arrives.
type Request struct {
	PatientID string
	Image     []byte
	Filename  string
}

// Prediction is one label/score pair from the inference model.
type Prediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Result is a completed analysis as delivered by the backend. ImageData is
// base64-encoded and omitted from history listings.
type Result struct {
	ID             string       `json:"id"`
	PatientID      string       `json:"patient_id"`
	PatientName    string       `json:"patient_name"`
	Prediction     string       `json:"prediction"`
	Confidence     float64      `json:"confidence"`
	AllPredictions []Prediction `json:"all_predictions,omitempty"`
	Report         string       `json:"report"`
	ImageData      string       `json:"image_data,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// FormatConfidence renders a confidence score in [0,1] as a percentage with
// two-decimal precision, e.g. 0.9534 -> "95.34%".
func FormatConfidence(score float64) string {
	return fmt.Sprintf("%.2f%%", score*100)
}
