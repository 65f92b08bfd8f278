package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/septivank/meter-dashboard/internal/blob"
	"github.com/septivank/meter-dashboard/internal/config"
	"github.com/septivank/meter-dashboard/internal/meter"
	"github.com/septivank/meter-dashboard/internal/metrics"
	"go.uber.org/zap"
)

// Meters is the meter service surface the API exposes
type Meters interface {
	Create(ctx context.Context, in meter.NewMeter) (uuid.UUID, error)
	Get(ctx context.Context, id uuid.UUID) (*meter.Meter, error)
	Image(ctx context.Context, id uuid.UUID) (*blob.Object, error)
	Query(ctx context.Context, q meter.Query) (*meter.Page, error)
	CountAll(ctx context.Context) (int, error)
	UpdateValue(ctx context.Context, id uuid.UUID, value float64) error
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	Report(ctx context.Context, id uuid.UUID) ([]byte, string, error)
}

var acceptedImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
}

// Handler serves the meter dashboard API
type Handler struct {
	meters  Meters
	limits  config.HTTPConfig
	metrics *metrics.Recorder
	logger  *zap.Logger
}

// NewHandler creates the API handler
func NewHandler(meters Meters, limits config.HTTPConfig, recorder *metrics.Recorder, logger *zap.Logger) *Handler {
	return &Handler{
		meters:  meters,
		limits:  limits,
		metrics: recorder,
		logger:  logger,
	}
}

// RegisterRoutes mounts the API on mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/meters", h.handleCreate)
	mux.HandleFunc("GET /api/meters", h.handleList)
	mux.HandleFunc("GET /api/meters/{id}", h.handleGet)
	mux.HandleFunc("PATCH /api/meters/{id}/value", h.handleUpdateValue)
	mux.HandleFunc("DELETE /api/meters/{id}", h.handleDelete)
	mux.HandleFunc("GET /api/meters/{id}/image", h.handleImage)
	mux.HandleFunc("GET /api/meters/{id}/report.pdf", h.handleReport)
	mux.HandleFunc("GET /api/stats", h.handleStats)
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.Handle("GET /metrics", h.metrics.Handler())
}

// Routes returns the API wrapped in request logging and metrics
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return h.instrument(mux)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.limits.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.limits.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "expected multipart/form-data body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	in := meter.NewMeter{
		MeterID:    r.FormValue("meter_id"),
		ConsumerID: r.FormValue("consumer_id"),
	}

	invalid := map[string]string{}
	if raw := strings.TrimSpace(r.FormValue("value")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			invalid[meter.FieldValue] = "must be a number"
		} else {
			in.Value = &value
		}
	}

	image, err := readImage(r)
	var imageErr *meter.ValidationError
	switch {
	case errors.As(err, &imageErr):
		invalid[meter.FieldImage] = imageErr.Reason
	case err != nil:
		h.writeServiceError(w, r, err)
		return
	}
	in.Image = image

	if len(invalid) > 0 {
		h.writeServiceError(w, r, formValidationError(in.Validate(), invalid))
		return
	}

	id, err := h.meters.Create(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	m, err := h.meters.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/meters/"+id.String())
	writeJSON(w, http.StatusCreated, m)
}

var createFormFields = []string{meter.FieldMeterID, meter.FieldConsumerID, meter.FieldValue, meter.FieldImage}

// formValidationError reports malformed fields alongside any missing ones, in form order.
func formValidationError(validateErr error, invalid map[string]string) *meter.ValidationError {
	missing := map[string]bool{}
	var verr *meter.ValidationError
	if errors.As(validateErr, &verr) && verr.Reason == "" {
		for _, f := range verr.Fields {
			missing[f] = true
		}
	}

	out := &meter.ValidationError{}
	var reasons []string
	for _, f := range createFormFields {
		if reason, ok := invalid[f]; ok {
			out.Fields = append(out.Fields, f)
			reasons = append(reasons, f+" "+reason)
		} else if missing[f] {
			out.Fields = append(out.Fields, f)
			reasons = append(reasons, f+" is required")
		}
	}
	out.Reason = strings.Join(reasons, "; ")
	return out
}

// readImage returns nil when no image part was sent
func readImage(r *http.Request) (*meter.ImageUpload, error) {
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, &meter.ValidationError{Fields: []string{meter.FieldImage}, Reason: "unreadable upload"}
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, &meter.ValidationError{Fields: []string{meter.FieldImage}, Reason: "unreadable upload"}
	}
	if len(data) == 0 {
		return nil, nil
	}

	contentType := http.DetectContentType(data)
	if !acceptedImageTypes[contentType] {
		return nil, &meter.ValidationError{Fields: []string{meter.FieldImage}, Reason: "must be a PNG or JPEG image"}
	}

	return &meter.ImageUpload{
		Data:        data,
		Filename:    header.Filename,
		ContentType: contentType,
	}, nil
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q, err := h.parseQuery(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	page, err := h.meters.Query(r.Context(), q)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) parseQuery(r *http.Request) (meter.Query, error) {
	values := r.URL.Query()
	q := meter.Query{
		Search:        values.Get("q"),
		ConsumerExact: values.Get("consumer"),
		PageSize:      h.limits.DefaultPageSize,
	}

	var err error
	if q.Sort, err = meter.ParseSortField(values.Get("sort")); err != nil {
		return q, err
	}
	if q.Direction, err = meter.ParseSortDirection(values.Get("dir")); err != nil {
		return q, err
	}

	if raw := values.Get("page"); raw != "" {
		if q.Page, err = strconv.Atoi(raw); err != nil {
			return q, &meter.ValidationError{Fields: []string{"page"}, Reason: "must be an integer"}
		}
	}
	if raw := values.Get("page_size"); raw != "" {
		if q.PageSize, err = strconv.Atoi(raw); err != nil {
			return q, &meter.ValidationError{Fields: []string{"page_size"}, Reason: "must be an integer"}
		}
	}
	if q.PageSize > h.limits.MaxPageSize {
		q.PageSize = h.limits.MaxPageSize
	}
	return q, nil
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	m, err := h.meters.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type valueUpdate struct {
	Value *float64 `json:"value"`
}

func (h *Handler) handleUpdateValue(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var body valueUpdate
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if body.Value == nil {
		h.writeServiceError(w, r, &meter.ValidationError{Fields: []string{meter.FieldValue}})
		return
	}

	if err := h.meters.UpdateValue(r.Context(), id, *body.Value); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	removed, err := h.meters.Delete(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, (&meter.NotFoundError{ID: id}).Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	obj, err := h.meters.Image(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Data)))
	if obj.Filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", obj.Filename))
	}
	w.WriteHeader(http.StatusOK)
	w.Write(obj.Data)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	out, filename, err := h.meters.Report(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", strconv.Itoa(len(out)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

type stats struct {
	Total    int `json:"total"`
	Matching int `json:"matching"`
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	q, err := h.parseQuery(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	q.Page, q.PageSize = 0, 1

	total, err := h.meters.CountAll(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	page, err := h.meters.Query(r.Context(), q)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats{Total: total, Matching: page.Total})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// pathID parses the {id} wildcard; malformed ids cannot name a meter
func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "meter not found")
		return uuid.Nil, false
	}
	return id, true
}

// writeServiceError maps the meter error taxonomy onto HTTP statuses
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation  *meter.ValidationError
		conflict    *meter.ConflictError
		notFound    *meter.NotFoundError
		unavailable *meter.StoreUnavailableError
		render      *meter.RenderError
	)

	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Error())
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, conflict.Error())
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, notFound.Error())
	case errors.As(err, &unavailable):
		requestLogger(h.logger, r).Error("store unavailable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "store unavailable, try again later")
	case errors.As(err, &render):
		requestLogger(h.logger, r).Error("report rendering failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, render.Error())
	default:
		requestLogger(h.logger, r).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
