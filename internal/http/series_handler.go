package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/recurring-calendar/internal/application"
	"github.com/example/recurring-calendar/internal/recurrence"
)

type seriesService interface {
	CreateSeries(ctx context.Context, input application.SeriesInput) (application.Series, error)
	GetSeries(ctx context.Context, id string) (application.Series, error)
	ListSeries(ctx context.Context) ([]application.Series, error)
	UpdateSeries(ctx context.Context, id string, input application.SeriesInput) (application.Series, error)
	DeleteSeries(ctx context.Context, id string) error
	SplitSeries(ctx context.Context, params application.SplitParams) (application.SplitResult, error)
}

type SeriesHandler struct {
	service   seriesService
	responder responder
}

func NewSeriesHandler(service seriesService, logger *slog.Logger) *SeriesHandler {
	return &SeriesHandler{service: service, responder: newResponder(logger)}
}

func (h *SeriesHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req seriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	input, err := req.toInput()
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	series, err := h.service.CreateSeries(r.Context(), input)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, seriesResponse{Series: toSeriesDTO(series)})
}

func (h *SeriesHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	seriesID, ok := SeriesIDFromContext(r.Context())
	if !ok || strings.TrimSpace(seriesID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSeriesID)
		return
	}

	series, err := h.service.GetSeries(r.Context(), seriesID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, seriesResponse{Series: toSeriesDTO(series)})
}

func (h *SeriesHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	series, err := h.service.ListSeries(r.Context())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, listSeriesResponse{Series: toSeriesDTOs(series)})
}

func (h *SeriesHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	seriesID, ok := SeriesIDFromContext(r.Context())
	if !ok || strings.TrimSpace(seriesID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSeriesID)
		return
	}

	var req seriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	input, err := req.toInput()
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	series, err := h.service.UpdateSeries(r.Context(), seriesID, input)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, seriesResponse{Series: toSeriesDTO(series)})
}

func (h *SeriesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	seriesID, ok := SeriesIDFromContext(r.Context())
	if !ok || strings.TrimSpace(seriesID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSeriesID)
		return
	}

	if err := h.service.DeleteSeries(r.Context(), seriesID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *SeriesHandler) Split(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	seriesID, ok := SeriesIDFromContext(r.Context())
	if !ok || strings.TrimSpace(seriesID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSeriesID)
		return
	}

	var req splitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	pivot, err := parseRequiredTime(req.PivotUTC)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, fmt.Errorf("pivot_utc: %w", err))
		return
	}

	updates, err := req.Updates.toUpdates()
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	result, err := h.service.SplitSeries(r.Context(), application.SplitParams{
		SeriesID: seriesID,
		Pivot:    pivot,
		Updates:  updates,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, splitResponse{
		Truncated: toSeriesDTO(result.Truncated),
		Created:   toSeriesDTO(result.Created),
	})
}

type seriesRequest struct {
	Title           string  `json:"title"`
	StartUTC        string  `json:"start_utc"`
	DurationMinutes int     `json:"duration_minutes"`
	Frequency       string  `json:"frequency"`
	Interval        int     `json:"interval"`
	Weekdays        []int   `json:"weekdays"`
	UntilUTC        *string `json:"until_utc"`
	Link            string  `json:"link"`
	Notes           string  `json:"notes"`
	Location        string  `json:"location"`
	Host            string  `json:"host"`
	EventType       string  `json:"event_type"`
}

func (r seriesRequest) toInput() (application.SeriesInput, error) {
	start, err := parseRequiredTime(r.StartUTC)
	if err != nil {
		return application.SeriesInput{}, fmt.Errorf("start_utc: %w", err)
	}

	var until *time.Time
	if r.UntilUTC != nil && strings.TrimSpace(*r.UntilUTC) != "" {
		ts, err := parseRequiredTime(*r.UntilUTC)
		if err != nil {
			return application.SeriesInput{}, fmt.Errorf("until_utc: %w", err)
		}
		until = &ts
	}

	weekdays, err := parseWeekdays(r.Weekdays)
	if err != nil {
		return application.SeriesInput{}, err
	}

	return application.SeriesInput{
		Title:           strings.TrimSpace(r.Title),
		Start:           start,
		DurationMinutes: r.DurationMinutes,
		Frequency:       recurrence.Frequency(strings.TrimSpace(r.Frequency)),
		Interval:        r.Interval,
		Weekdays:        weekdays,
		Until:           until,
		Link:            strings.TrimSpace(r.Link),
		Notes:           r.Notes,
		Location:        strings.TrimSpace(r.Location),
		Host:            strings.TrimSpace(r.Host),
		EventType:       application.EventType(strings.TrimSpace(r.EventType)),
	}, nil
}

type splitRequest struct {
	PivotUTC string               `json:"pivot_utc"`
	Updates  seriesUpdatesRequest `json:"updates"`
}

type seriesUpdatesRequest struct {
	Title           *string `json:"title"`
	DurationMinutes *int    `json:"duration_minutes"`
	Link            *string `json:"link"`
	Notes           *string `json:"notes"`
	Location        *string `json:"location"`
	Host            *string `json:"host"`
	EventType       *string `json:"event_type"`
	Weekdays        []int   `json:"weekdays"`
	Interval        *int    `json:"interval"`
}

func (r seriesUpdatesRequest) toUpdates() (application.SeriesUpdates, error) {
	weekdays, err := parseWeekdays(r.Weekdays)
	if err != nil {
		return application.SeriesUpdates{}, err
	}

	updates := application.SeriesUpdates{
		Title:           r.Title,
		DurationMinutes: r.DurationMinutes,
		Link:            r.Link,
		Notes:           r.Notes,
		Location:        r.Location,
		Host:            r.Host,
		Weekdays:        weekdays,
		Interval:        r.Interval,
	}
	if r.EventType != nil {
		eventType := application.EventType(strings.TrimSpace(*r.EventType))
		updates.EventType = &eventType
	}
	return updates, nil
}

func parseRequiredTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errInvalidTimestamp
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, errInvalidTimestamp
	}
	return ts, nil
}

func parseWeekdays(values []int) ([]time.Weekday, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make([]time.Weekday, 0, len(values))
	for _, value := range values {
		if value < 0 || value > 6 {
			return nil, fmt.Errorf("weekdays: %d is not a valid weekday (0=Sunday .. 6=Saturday)", value)
		}
		out = append(out, time.Weekday(value))
	}
	return out, nil
}

type seriesResponse struct {
	Series seriesDTO `json:"series"`
}

type listSeriesResponse struct {
	Series []seriesDTO `json:"series"`
}

type splitResponse struct {
	Truncated seriesDTO `json:"truncated"`
	Created   seriesDTO `json:"created"`
}

type seriesDTO struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	StartUTC        string  `json:"start_utc"`
	DurationMinutes int     `json:"duration_minutes"`
	Frequency       string  `json:"frequency"`
	Interval        int     `json:"interval"`
	Weekdays        []int   `json:"weekdays,omitempty"`
	UntilUTC        *string `json:"until_utc,omitempty"`
	Link            string  `json:"link,omitempty"`
	Notes           string  `json:"notes,omitempty"`
	Location        string  `json:"location,omitempty"`
	Host            string  `json:"host,omitempty"`
	EventType       string  `json:"event_type"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

func toSeriesDTO(series application.Series) seriesDTO {
	dto := seriesDTO{
		ID:              series.ID,
		Title:           series.Title,
		StartUTC:        series.Start.UTC().Format(time.RFC3339),
		DurationMinutes: series.DurationMinutes,
		Frequency:       string(series.Frequency),
		Interval:        series.Interval,
		Link:            series.Link,
		Notes:           series.Notes,
		Location:        series.Location,
		Host:            series.Host,
		EventType:       string(series.EventType),
		CreatedAt:       series.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       series.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if len(series.Weekdays) > 0 {
		dto.Weekdays = make([]int, 0, len(series.Weekdays))
		for _, day := range series.Weekdays {
			dto.Weekdays = append(dto.Weekdays, int(day))
		}
	}
	if series.Until != nil {
		until := series.Until.UTC().Format(time.RFC3339)
		dto.UntilUTC = &until
	}
	return dto
}

func toSeriesDTOs(series []application.Series) []seriesDTO {
	if len(series) == 0 {
		return nil
	}
	out := make([]seriesDTO, 0, len(series))
	for _, s := range series {
		out = append(out, toSeriesDTO(s))
	}
	return out
}
