package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/meter-dashboard/internal/blob"
	"github.com/septivank/meter-dashboard/internal/meter"
	"github.com/septivank/meter-dashboard/internal/metrics"
	"github.com/septivank/meter-dashboard/internal/mq"
	"github.com/septivank/meter-dashboard/internal/report"
	"go.uber.org/zap"
)

// Repository persists meter records
type Repository interface {
	FindConflicts(ctx context.Context, meterIDNorm, consumerIDNorm string) ([]meter.Meter, error)
	Insert(ctx context.Context, m *meter.Meter) error
	Get(ctx context.Context, id uuid.UUID) (*meter.Meter, error)
	UpdateValue(ctx context.Context, id uuid.UUID, value float64, at time.Time) (bool, error)
	UpdateValueByMeterID(ctx context.Context, meterIDNorm string, value float64, at time.Time) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	Query(ctx context.Context, q meter.Query) ([]meter.Meter, int, error)
	Count(ctx context.Context) (int, error)
}

// EventPublisher announces meter lifecycle changes
type EventPublisher interface {
	PublishMeterEvent(ctx context.Context, event mq.MeterEvent) error
}

// MeterService implements the meter record lifecycle and queries
type MeterService struct {
	repo      Repository
	blobs     blob.Store
	reports   *report.Builder
	publisher EventPublisher
	metrics   *metrics.Recorder
	logger    *zap.Logger
	now       func() time.Time
}

// Option customises a MeterService
type Option func(*MeterService)

// WithClock overrides the time source used for created_at/updated_at
func WithClock(now func() time.Time) Option {
	return func(s *MeterService) { s.now = now }
}

// NewMeterService creates a new meter service
func NewMeterService(
	repo Repository,
	blobs blob.Store,
	reports *report.Builder,
	publisher EventPublisher,
	recorder *metrics.Recorder,
	logger *zap.Logger,
	opts ...Option,
) *MeterService {
	s := &MeterService{
		repo:      repo,
		blobs:     blobs,
		reports:   reports,
		publisher: publisher,
		metrics:   recorder,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a new meter. The image is stored before the row is inserted.
func (s *MeterService) Create(ctx context.Context, in meter.NewMeter) (uuid.UUID, error) {
	if err := in.Validate(); err != nil {
		s.metrics.Operation("create", metrics.ResultInvalid)
		return uuid.Nil, err
	}

	meterIDNorm := meter.Normalize(in.MeterID)
	consumerIDNorm := meter.Normalize(in.ConsumerID)

	// Advisory pre-check; the unique indexes remain the source of truth
	existing, err := s.repo.FindConflicts(ctx, meterIDNorm, consumerIDNorm)
	if err != nil {
		s.metrics.Operation("create", metrics.ResultError)
		return uuid.Nil, err
	}
	if conflict := meter.ClassifyConflict(existing, meterIDNorm, consumerIDNorm); conflict != nil {
		s.metrics.Operation("create", metrics.ResultConflict)
		return uuid.Nil, conflict
	}

	imageRef, err := s.blobs.Put(ctx, in.Image.Data, blob.PutOptions{
		Filename:    in.Image.Filename,
		ContentType: in.Image.ContentType,
	})
	if err != nil {
		s.metrics.Operation("create", metrics.ResultError)
		return uuid.Nil, &meter.StoreUnavailableError{Op: "store image", Err: err}
	}

	now := s.now().UTC()
	m := &meter.Meter{
		ID:             uuid.New(),
		MeterID:        meterIDNorm,
		ConsumerID:     consumerIDNorm,
		MeterIDNorm:    meterIDNorm,
		ConsumerIDNorm: consumerIDNorm,
		Value:          *in.Value,
		ImageRef:       imageRef,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.Insert(ctx, m); err != nil {
		s.discardImage(ctx, imageRef)

		var conflict *meter.ConflictError
		if errors.As(err, &conflict) {
			s.metrics.Operation("create", metrics.ResultConflict)
			return uuid.Nil, s.refineConflict(ctx, conflict, meterIDNorm, consumerIDNorm)
		}
		s.metrics.Operation("create", metrics.ResultError)
		return uuid.Nil, err
	}

	s.metrics.Operation("create", metrics.ResultOK)
	s.logger.Info("meter created",
		zap.String("id", m.ID.String()),
		zap.String("meter_id", m.MeterID),
		zap.String("consumer_id", m.ConsumerID),
	)
	s.publish(ctx, mq.MeterEvent{
		Event:      mq.EventMeterCreated,
		ID:         m.ID.String(),
		MeterID:    m.MeterID,
		ConsumerID: m.ConsumerID,
		Value:      &m.Value,
		OccurredAt: now,
	})

	return m.ID, nil
}

// refineConflict re-reads the colliding rows after a lost insert race so the
// error names every colliding field, not only the index that fired first.
func (s *MeterService) refineConflict(ctx context.Context, fromIndex *meter.ConflictError, meterIDNorm, consumerIDNorm string) error {
	existing, err := s.repo.FindConflicts(ctx, meterIDNorm, consumerIDNorm)
	if err != nil {
		s.logger.Warn("failed to classify insert conflict", zap.Error(err))
		return fromIndex
	}
	if conflict := meter.ClassifyConflict(existing, meterIDNorm, consumerIDNorm); conflict != nil {
		conflict.Constraint = fromIndex.Constraint
		return conflict
	}
	return fromIndex
}

// discardImage deletes an image whose record could not be inserted: attempt, log, ignore.
func (s *MeterService) discardImage(ctx context.Context, imageRef string) {
	if err := s.blobs.Delete(ctx, imageRef); err != nil {
		s.metrics.CleanupFailed("insert_failed")
		s.logger.Warn("failed to delete orphaned image",
			zap.String("image_ref", imageRef),
			zap.Error(err),
		)
	}
}

// UpdateValue sets a meter's reading. An unknown id is a silent no-op.
func (s *MeterService) UpdateValue(ctx context.Context, id uuid.UUID, value float64) error {
	if err := meter.ValidateValue(value); err != nil {
		s.metrics.Operation("update_value", metrics.ResultInvalid)
		return err
	}

	now := s.now().UTC()
	updated, err := s.repo.UpdateValue(ctx, id, value, now)
	if err != nil {
		s.metrics.Operation("update_value", metrics.ResultError)
		return err
	}
	if !updated {
		s.metrics.Operation("update_value", metrics.ResultNotFound)
		s.logger.Debug("value update matched no meter", zap.String("id", id.String()))
		return nil
	}

	s.metrics.Operation("update_value", metrics.ResultOK)
	s.publish(ctx, mq.MeterEvent{
		Event:      mq.EventMeterValueUpdated,
		ID:         id.String(),
		Value:      &value,
		OccurredAt: now,
	})
	return nil
}

// UpdateValueByMeterID sets the reading of the meter with the given meter id.
// It reports whether a meter matched.
func (s *MeterService) UpdateValueByMeterID(ctx context.Context, meterID string, value float64) (bool, error) {
	if err := meter.ValidateValue(value); err != nil {
		return false, err
	}
	meterIDNorm := meter.Normalize(meterID)
	if meterIDNorm == "" {
		return false, &meter.ValidationError{Fields: []string{meter.FieldMeterID}}
	}

	now := s.now().UTC()
	updated, err := s.repo.UpdateValueByMeterID(ctx, meterIDNorm, value, now)
	if err != nil {
		s.metrics.Operation("sync_value", metrics.ResultError)
		return false, err
	}
	if !updated {
		s.metrics.Operation("sync_value", metrics.ResultNotFound)
		return false, nil
	}

	s.metrics.Operation("sync_value", metrics.ResultOK)
	s.publish(ctx, mq.MeterEvent{
		Event:      mq.EventMeterValueUpdated,
		MeterID:    meterIDNorm,
		Value:      &value,
		OccurredAt: now,
	})
	return true, nil
}

// Delete removes a meter and, best-effort, its image. It reports whether a row was removed.
func (s *MeterService) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		var nf *meter.NotFoundError
		if errors.As(err, &nf) {
			s.metrics.Operation("delete", metrics.ResultNotFound)
			return false, nil
		}
		s.metrics.Operation("delete", metrics.ResultError)
		return false, err
	}

	if m.ImageRef != "" {
		if err := s.blobs.Delete(ctx, m.ImageRef); err != nil {
			s.metrics.CleanupFailed("delete")
			s.logger.Warn("failed to delete meter image, continuing",
				zap.String("id", id.String()),
				zap.String("image_ref", m.ImageRef),
				zap.Error(err),
			)
		}
	}

	removed, err := s.repo.Delete(ctx, id)
	if err != nil {
		s.metrics.Operation("delete", metrics.ResultError)
		return false, err
	}
	if !removed {
		s.metrics.Operation("delete", metrics.ResultNotFound)
		return false, nil
	}

	s.metrics.Operation("delete", metrics.ResultOK)
	s.logger.Info("meter deleted", zap.String("id", id.String()), zap.String("meter_id", m.MeterID))
	s.publish(ctx, mq.MeterEvent{
		Event:      mq.EventMeterDeleted,
		ID:         id.String(),
		MeterID:    m.MeterID,
		ConsumerID: m.ConsumerID,
		OccurredAt: s.now().UTC(),
	})
	return true, nil
}

// Get returns a meter or *meter.NotFoundError
func (s *MeterService) Get(ctx context.Context, id uuid.UUID) (*meter.Meter, error) {
	return s.repo.Get(ctx, id)
}

// Image returns the stored image of a meter
func (s *MeterService) Image(ctx context.Context, id uuid.UUID) (*blob.Object, error) {
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.ImageRef == "" {
		return nil, &meter.NotFoundError{ID: id}
	}

	obj, err := s.blobs.Get(ctx, m.ImageRef)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, &meter.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, &meter.StoreUnavailableError{Op: "load image", Err: err}
	}
	return obj, nil
}

// Query returns a filtered, sorted page of meters and the total match count
func (s *MeterService) Query(ctx context.Context, q meter.Query) (*meter.Page, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	items, total, err := s.repo.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []meter.Meter{}
	}

	return &meter.Page{
		Items:    items,
		Total:    total,
		Page:     q.Page,
		PageSize: q.PageSize,
		Pages:    meter.PageCount(total, q.PageSize),
	}, nil
}

// CountAll returns the number of meters regardless of filters
func (s *MeterService) CountAll(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Report renders the PDF summary of a meter and returns it with its download name.
// A missing or unreadable image only drops the image from the page.
func (s *MeterService) Report(ctx context.Context, id uuid.UUID) ([]byte, string, error) {
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}

	var image []byte
	if m.ImageRef != "" {
		obj, err := s.blobs.Get(ctx, m.ImageRef)
		if err != nil {
			s.logger.Warn("rendering report without image",
				zap.String("id", id.String()),
				zap.String("image_ref", m.ImageRef),
				zap.Error(err),
			)
		} else {
			image = obj.Data
		}
	}

	out, err := s.reports.Render(*m, image)
	if err != nil {
		s.metrics.Render(metrics.ResultError)
		return nil, "", err
	}
	s.metrics.Render(metrics.ResultOK)
	return out, report.Filename(*m), nil
}

// publish announces an event; failures are logged and never fail the operation
func (s *MeterService) publish(ctx context.Context, event mq.MeterEvent) {
	if err := s.publisher.PublishMeterEvent(ctx, event); err != nil {
		s.logger.Error("failed to publish event",
			zap.Error(err),
			zap.String("event", event.Event),
			zap.String("id", event.ID),
		)
	}
}
