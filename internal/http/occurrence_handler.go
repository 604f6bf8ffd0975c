package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/recurring-calendar/internal/application"
	"github.com/example/recurring-calendar/internal/tz"
)

type occurrenceService interface {
	Materialize(ctx context.Context, params application.MaterializeParams) (application.MaterializeResult, error)
	UpsertException(ctx context.Context, params application.UpsertExceptionParams) (application.Exception, error)
	DeleteOccurrence(ctx context.Context, params application.DeleteOccurrenceParams) error
}

type calendarEncoder interface {
	Encode(w io.Writer, occurrences []application.Occurrence) error
}

type OccurrenceHandler struct {
	service   occurrenceService
	encoder   calendarEncoder
	defaultTZ string
	responder responder
	now       func() time.Time
}

func NewOccurrenceHandler(service occurrenceService, encoder calendarEncoder, logger *slog.Logger) *OccurrenceHandler {
	return &OccurrenceHandler{service: service, encoder: encoder, responder: newResponder(logger), now: time.Now}
}

// WithDefaultTimezone sets the IANA zone applied when a request omits the tz
// query parameter. The name must already be validated with tz.Load.
func (h *OccurrenceHandler) WithDefaultTimezone(name string) *OccurrenceHandler {
	if h != nil {
		h.defaultTZ = name
	}
	return h
}

func (h *OccurrenceHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	params, err := h.buildMaterializeParams(r.URL.Query())
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	result, err := h.service.Materialize(r.Context(), params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, listOccurrencesResponse{
		Occurrences: toOccurrenceDTOs(result.Occurrences),
		Warnings:    toWarningDTOs(result.Warnings),
	})
}

func (h *OccurrenceHandler) Feed(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil || h.encoder == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	params, err := h.buildMaterializeParams(r.URL.Query())
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	result, err := h.service.Materialize(r.Context(), params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="calendar.ics"`)
	if err := h.encoder.Encode(w, result.Occurrences); err != nil {
		handlerLogger(r.Context(), h.responder.logger, "OccurrenceHandler", "Feed").
			ErrorContext(r.Context(), "failed to encode calendar feed", "error", err)
	}
}

func (h *OccurrenceHandler) UpsertException(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	seriesID, ok := SeriesIDFromContext(r.Context())
	if !ok || strings.TrimSpace(seriesID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSeriesID)
		return
	}

	var req exceptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	occurrenceStart, err := parseRequiredTime(req.OccurrenceStartUTC)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, fmt.Errorf("occurrence_start_utc: %w", err))
		return
	}

	overrides, err := req.Overrides.toOverrides()
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	exception, err := h.service.UpsertException(r.Context(), application.UpsertExceptionParams{
		SeriesID:        seriesID,
		OccurrenceStart: occurrenceStart,
		Overrides:       overrides,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, exceptionResponse{Exception: toExceptionDTO(exception)})
}

func (h *OccurrenceHandler) DeleteOccurrence(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	seriesID, ok := SeriesIDFromContext(r.Context())
	if !ok || strings.TrimSpace(seriesID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSeriesID)
		return
	}

	occurrenceStart, err := parseRequiredTime(r.URL.Query().Get("occurrence_start_utc"))
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, fmt.Errorf("occurrence_start_utc: %w", err))
		return
	}

	if err := h.service.DeleteOccurrence(r.Context(), application.DeleteOccurrenceParams{
		SeriesID:        seriesID,
		OccurrenceStart: occurrenceStart,
	}); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *OccurrenceHandler) buildMaterializeParams(query url.Values) (application.MaterializeParams, error) {
	var params application.MaterializeParams

	name := strings.TrimSpace(query.Get("tz"))
	if name == "" {
		name = h.defaultTZ
	}
	if name != "" {
		location, err := tz.Load(name)
		if err != nil {
			if errors.Is(err, tz.ErrUnknownTimezone) {
				return application.MaterializeParams{}, fmt.Errorf("tz: %q is not a known IANA timezone", name)
			}
			return application.MaterializeParams{}, err
		}
		params.Location = location
		params.TimezoneName = name
	}

	startRaw := strings.TrimSpace(query.Get("window_start_utc"))
	endRaw := strings.TrimSpace(query.Get("window_end_utc"))
	switch {
	case startRaw == "" && endRaw == "":
		// No explicit window: serve the current week in the display timezone.
		params.WindowStart, params.WindowEnd = tz.WeekWindow(h.now(), params.Location)
	case startRaw == "" || endRaw == "":
		return application.MaterializeParams{}, errMissingWindow
	default:
		start, err := parseRequiredTime(startRaw)
		if err != nil {
			return application.MaterializeParams{}, fmt.Errorf("window_start_utc: %w", err)
		}
		end, err := parseRequiredTime(endRaw)
		if err != nil {
			return application.MaterializeParams{}, fmt.Errorf("window_end_utc: %w", err)
		}
		params.WindowStart, params.WindowEnd = start, end
	}

	return params, nil
}

type exceptionRequest struct {
	OccurrenceStartUTC string                   `json:"occurrence_start_utc"`
	Overrides          exceptionOverridesRequest `json:"overrides"`
}

type exceptionOverridesRequest struct {
	StartUTC        *string `json:"start_utc"`
	DurationMinutes *int    `json:"duration_minutes"`
	Title           *string `json:"title"`
	Link            *string `json:"link"`
	Notes           *string `json:"notes"`
	Location        *string `json:"location"`
	Host            *string `json:"host"`
	EventType       *string `json:"event_type"`
}

func (r exceptionOverridesRequest) toOverrides() (application.ExceptionOverrides, error) {
	overrides := application.ExceptionOverrides{
		DurationMinutes: r.DurationMinutes,
		Title:           r.Title,
		Link:            r.Link,
		Notes:           r.Notes,
		Location:        r.Location,
		Host:            r.Host,
	}
	if r.StartUTC != nil && strings.TrimSpace(*r.StartUTC) != "" {
		ts, err := parseRequiredTime(*r.StartUTC)
		if err != nil {
			return application.ExceptionOverrides{}, fmt.Errorf("overrides.start_utc: %w", err)
		}
		overrides.Start = &ts
	}
	if r.EventType != nil {
		eventType := application.EventType(strings.TrimSpace(*r.EventType))
		overrides.EventType = &eventType
	}
	return overrides, nil
}

type listOccurrencesResponse struct {
	Occurrences []occurrenceDTO `json:"occurrences"`
	Warnings    []warningDTO    `json:"warnings,omitempty"`
}

type occurrenceDTO struct {
	SeriesID         string `json:"series_id"`
	StartUTC         string `json:"start_utc"`
	EndUTC           string `json:"end_utc"`
	OriginalStartUTC string `json:"original_start_utc"`
	LocalStart       string `json:"local_start,omitempty"`
	DurationMinutes  int    `json:"duration_minutes"`
	Title            string `json:"title"`
	Link             string `json:"link,omitempty"`
	Notes            string `json:"notes,omitempty"`
	Location         string `json:"location,omitempty"`
	Host             string `json:"host,omitempty"`
	EventType        string `json:"event_type"`
	Frequency        string `json:"frequency"`
	IsException      bool   `json:"is_exception"`
}

func toOccurrenceDTOs(occurrences []application.Occurrence) []occurrenceDTO {
	if len(occurrences) == 0 {
		return nil
	}

	out := make([]occurrenceDTO, 0, len(occurrences))
	for _, occurrence := range occurrences {
		dto := occurrenceDTO{
			SeriesID:         occurrence.SeriesID,
			StartUTC:         occurrence.Start.UTC().Format(time.RFC3339),
			EndUTC:           occurrence.End().UTC().Format(time.RFC3339),
			OriginalStartUTC: occurrence.OriginalStart.UTC().Format(time.RFC3339),
			DurationMinutes:  occurrence.DurationMinutes,
			Title:            occurrence.Title,
			Link:             occurrence.Link,
			Notes:            occurrence.Notes,
			Location:         occurrence.Location,
			Host:             occurrence.Host,
			EventType:        string(occurrence.EventType),
			Frequency:        string(occurrence.Frequency),
			IsException:      occurrence.IsException,
		}
		if !occurrence.LocalStart.IsZero() {
			dto.LocalStart = occurrence.LocalStart.Format(time.RFC3339)
		}
		out = append(out, dto)
	}
	return out
}

type warningDTO struct {
	SeriesID     string `json:"series_id"`
	WithSeriesID string `json:"with_series_id"`
	StartUTC     string `json:"start_utc"`
}

func toWarningDTOs(warnings []application.OverlapWarning) []warningDTO {
	if len(warnings) == 0 {
		return nil
	}

	out := make([]warningDTO, 0, len(warnings))
	for _, warning := range warnings {
		out = append(out, warningDTO{
			SeriesID:     warning.SeriesID,
			WithSeriesID: warning.WithSeriesID,
			StartUTC:     warning.Start.UTC().Format(time.RFC3339),
		})
	}
	return out
}

type exceptionResponse struct {
	Exception exceptionDTO `json:"exception"`
}

type exceptionDTO struct {
	ID                 string  `json:"id"`
	SeriesID           string  `json:"series_id"`
	OccurrenceStartUTC string  `json:"occurrence_start_utc"`
	Deleted            bool    `json:"deleted"`
	StartUTC           *string `json:"start_utc,omitempty"`
	DurationMinutes    *int    `json:"duration_minutes,omitempty"`
	Title              *string `json:"title,omitempty"`
	Link               *string `json:"link,omitempty"`
	Notes              *string `json:"notes,omitempty"`
	Location           *string `json:"location,omitempty"`
	Host               *string `json:"host,omitempty"`
	EventType          *string `json:"event_type,omitempty"`
	CreatedAt          string  `json:"created_at"`
}

func toExceptionDTO(exception application.Exception) exceptionDTO {
	dto := exceptionDTO{
		ID:                 exception.ID,
		SeriesID:           exception.SeriesID,
		OccurrenceStartUTC: exception.OccurrenceStart.UTC().Format(time.RFC3339),
		Deleted:            exception.Deleted,
		DurationMinutes:    exception.Overrides.DurationMinutes,
		Title:              exception.Overrides.Title,
		Link:               exception.Overrides.Link,
		Notes:              exception.Overrides.Notes,
		Location:           exception.Overrides.Location,
		Host:               exception.Overrides.Host,
		CreatedAt:          exception.CreatedAt.UTC().Format(time.RFC3339),
	}
	if exception.Overrides.Start != nil {
		start := exception.Overrides.Start.UTC().Format(time.RFC3339)
		dto.StartUTC = &start
	}
	if exception.Overrides.EventType != nil {
		eventType := string(*exception.Overrides.EventType)
		dto.EventType = &eventType
	}
	return dto
}
