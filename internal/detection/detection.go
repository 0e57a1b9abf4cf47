// Package detection holds the bounding-box and OCR accuracy scorers.
// Neither has a model behind it yet, so every entry point fails with
// ErrNotSupported instead of returning a placeholder value.
package detection

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotSupported is returned by scorers whose capability is missing.
var ErrNotSupported = errors.New("not supported")

// Capabilities that are not implemented.
const (
	CapabilityMAP50           = "bounding-box mAP@0.5"
	CapabilityHighRecall      = "bounding-box precision at high recall"
	CapabilityOCRSignAccuracy = "OCR sign accuracy"
)

func unsupported(capability string) error {
	return fmt.Errorf("%s: %w", capability, ErrNotSupported)
}

// ComputeMAP50 would score detections against annotated boxes at an IoU
// threshold of 0.5.
func ComputeMAP50(predictions, groundTruth json.RawMessage) (float64, error) {
	return 0, unsupported(CapabilityMAP50)
}

// PrecisionAtHighRecall would report detection precision at the operating
// point where recall reaches minRecall.
func PrecisionAtHighRecall(predictions, groundTruth json.RawMessage, minRecall float64) (float64, error) {
	return 0, unsupported(CapabilityHighRecall)
}

// OCRSignAccuracy would compare recognised sign text with annotations.
func OCRSignAccuracy(predictions, groundTruth json.RawMessage) (float64, error) {
	return 0, unsupported(CapabilityOCRSignAccuracy)
}

// Scorer is one named detection or OCR metric.
type Scorer struct {
	Name  string
	Score func(predictions, groundTruth json.RawMessage) (float64, error)
}

// Scorers lists every detection and OCR metric in report order.
func Scorers() []Scorer {
	return []Scorer{
		{Name: "map50", Score: ComputeMAP50},
		{Name: "precision_at_high_recall", Score: func(p, g json.RawMessage) (float64, error) {
			return PrecisionAtHighRecall(p, g, 0.9)
		}},
		{Name: "ocr_sign_accuracy", Score: OCRSignAccuracy},
	}
}

// Run evaluates every scorer and joins their errors.
func Run(predictions, groundTruth json.RawMessage) (map[string]float64, error) {
	out := make(map[string]float64)
	var errs []error
	for _, s := range Scorers() {
		v, err := s.Score(predictions, groundTruth)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
			continue
		}
		out[s.Name] = v
	}
	return out, errors.Join(errs...)
}
