package extract

import (
	"errors"
	"fmt"
)

// MalformedCaptureError indicates the root document of a capture could not
// be parsed. The whole capture is skipped.
type MalformedCaptureError struct {
	Reason string
}

func (e *MalformedCaptureError) Error() string {
	return fmt.Sprintf("malformed capture: %s", e.Reason)
}

// IsMalformedCapture checks if an error is a MalformedCaptureError.
func IsMalformedCapture(err error) bool {
	var target *MalformedCaptureError
	return errors.As(err, &target)
}

// Warning reports a sub-document that was skipped. Warnings never abort an
// extraction.
type Warning struct {
	Path     string `json:"path"`
	Kind     string `json:"kind,omitempty"`
	EntityID string `json:"entity_id,omitempty"`
	Reason   string `json:"reason"`
}

func (w Warning) String() string {
	if w.EntityID != "" {
		return fmt.Sprintf("%s (%s %s): %s", w.Path, w.Kind, w.EntityID, w.Reason)
	}
	return fmt.Sprintf("%s: %s", w.Path, w.Reason)
}
