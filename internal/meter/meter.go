package meter

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Meter represents a registered meter record
type Meter struct {
	ID             uuid.UUID `json:"id"`
	MeterID        string    `json:"meter_id"`
	ConsumerID     string    `json:"consumer_id"`
	MeterIDNorm    string    `json:"-"`
	ConsumerIDNorm string    `json:"-"`
	Value          float64   `json:"value"`
	ImageRef       string    `json:"image_ref,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ImageUpload is the image payload supplied when a meter is registered
type ImageUpload struct {
	Data        []byte
	Filename    string
	ContentType string
}

// NewMeter holds user input for registering a meter
type NewMeter struct {
	MeterID    string
	ConsumerID string
	Value      *float64
	Image      *ImageUpload
}

// Normalize maps an identifier to its canonical comparison form.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Validate reports every missing or malformed field at once.
func (n NewMeter) Validate() error {
	var missing []string
	if Normalize(n.MeterID) == "" {
		missing = append(missing, FieldMeterID)
	}
	if Normalize(n.ConsumerID) == "" {
		missing = append(missing, FieldConsumerID)
	}
	if n.Value == nil {
		missing = append(missing, FieldValue)
	}
	if n.Image == nil || len(n.Image.Data) == 0 {
		missing = append(missing, FieldImage)
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return ValidateValue(*n.Value)
}

// ValidateValue rejects readings that cannot be stored or sorted.
func ValidateValue(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &ValidationError{Fields: []string{FieldValue}, Reason: "must be a finite number"}
	}
	return nil
}

// Field labels used in validation messages
const (
	FieldMeterID    = "Meter ID"
	FieldConsumerID = "Consumer ID"
	FieldValue      = "Value"
	FieldImage      = "Image"
)
