// Package http provides HTTP handlers and middleware for the calendar API.
//
// The router exposes the following endpoints:
//   - GET /occurrences: materializes every active series into concrete
//     occurrences for the window given by `window_start_utc` and
//     `window_end_utc` (RFC 3339). An optional `tz` query parameter names an
//     IANA timezone used to populate the `local_start` field. Responses
//     include overlap warnings between simultaneous occurrences.
//   - GET /occurrences.ics: the same window rendered as an iCalendar feed.
//   - GET /series, POST /series, GET /series/{id}, PUT /series/{id},
//     DELETE /series/{id}: series management endpoints exchanging the
//     `seriesDTO` payload defined in series_handler.go. Deletion is a soft
//     delete; removed series no longer materialize.
//   - POST /series/{id}/occurrence: records an exception for a single
//     occurrence, overriding its start, duration, or descriptive fields.
//   - DELETE /series/{id}/occurrence?occurrence_start_utc=...: cancels a
//     single occurrence without touching the rest of the series.
//   - POST /series/{id}/split: truncates the series at a pivot occurrence and
//     creates a new series carrying the tail, optionally with field updates.
//
// Request/response DTOs live alongside their respective handlers so tests and
// documentation share the same ground truth.
package http
