package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/septivank/meter-dashboard/internal/logging"
	"github.com/septivank/meter-dashboard/internal/meter"
	"github.com/septivank/meter-dashboard/internal/validator"
	"go.uber.org/zap"
)

// StatusValid is the validation status the metering worker assigns to accepted readings
const StatusValid = "valid"

// ReadingMessage is an accepted reading announced by the metering worker
type ReadingMessage struct {
	RequestID        string          `json:"request_id"`
	MeterID          string          `json:"meter_id"`
	MetricName       string          `json:"metric_name,omitempty"`
	MetricValue      json.RawMessage `json:"metric_value"`
	ReadingTimestamp string          `json:"reading_timestamp,omitempty"`
	ReceivedAt       time.Time       `json:"received_at,omitempty"`
	ValidationStatus string          `json:"validation_status,omitempty"`
}

// ValueUpdater applies a reading to the meter with the given meter id
type ValueUpdater interface {
	UpdateValueByMeterID(ctx context.Context, meterID string, value float64) (bool, error)
}

// Processor applies reading messages to meter records
type Processor struct {
	updater   ValueUpdater
	validator *validator.Validator
	logger    *zap.Logger
	now       func() time.Time
}

// NewProcessor creates a new reading processor
func NewProcessor(updater ValueUpdater, v *validator.Validator, logger *zap.Logger) *Processor {
	return &Processor{
		updater:   updater,
		validator: v,
		logger:    logger,
		now:       time.Now,
	}
}

// ProcessMessage handles one delivery. Returning an error dead-letters the message;
// readings that can never apply are logged and acknowledged.
func (p *Processor) ProcessMessage(ctx context.Context, body []byte) error {
	var msg ReadingMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}

	reqLogger := logging.WithRequestID(p.logger, msg.RequestID).With(zap.String("meter_id", msg.MeterID))

	if msg.ValidationStatus != "" && msg.ValidationStatus != StatusValid {
		reqLogger.Debug("skipping reading not accepted upstream",
			zap.String("validation_status", msg.ValidationStatus),
		)
		return nil
	}

	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = p.now().UTC()
	}

	res := p.validator.Validate(validator.Reading{
		MeterID:   msg.MeterID,
		Value:     strings.Trim(string(msg.MetricValue), `"`),
		Timestamp: msg.ReadingTimestamp,
	}, receivedAt)
	if !res.Valid() {
		reqLogger.Warn("reading rejected", zap.String("reason", res.Reason))
		return nil
	}

	updated, err := p.updater.UpdateValueByMeterID(ctx, res.MeterID, res.Value)
	if err != nil {
		var verr *meter.ValidationError
		if errors.As(err, &verr) {
			reqLogger.Warn("reading rejected", zap.Error(err))
			return nil
		}
		reqLogger.Error("failed to apply reading", zap.Error(err))
		return fmt.Errorf("failed to apply reading: %w", err)
	}

	if !updated {
		reqLogger.Info("reading for unregistered meter ignored")
		return nil
	}

	reqLogger.Info("meter value synced",
		zap.Float64("value", res.Value),
		zap.Time("reading_timestamp", res.Timestamp),
	)
	return nil
}
