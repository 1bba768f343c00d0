package apperrors

import (
	"errors"
	"net/http"
)

// Input validation errors. Recoverable locally: the offending sample is
// rejected, a batch continues with its remaining items.
var (
	ErrInvalidCoordinates = errors.New("invalid coordinates: latitude must be in [-90,90], longitude in [-180,180]")
	ErrInvalidAccuracy    = errors.New("invalid accuracy: must be in [0,10000] meters")
	ErrInvalidSpeed       = errors.New("invalid speed: must be in [0,500] m/s")
)

// Session state-machine errors. Surfaced to the caller, never retried by the
// engine itself.
var (
	ErrSessionNotActive     = errors.New("tracking session is not active")
	ErrSessionAlreadyActive = errors.New("an active tracking session already exists for this trip")
	ErrSessionNotFound      = errors.New("no tracking session found for this trip")
)

// ErrGeofenceGeometry is returned when a geofence is created with malformed
// geometry. Never silently tolerated.
var ErrGeofenceGeometry = errors.New("malformed geofence geometry")

// Infrastructure errors. Cache failures degrade to storage; storage write
// failures abort the ingestion of the affected sample.
var (
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrCacheUnavailable   = errors.New("cache unavailable")
)

// Kind returns the short machine-readable name for a taxonomy error, or
// "internal" for anything unrecognized.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCoordinates):
		return "invalid_coordinates"
	case errors.Is(err, ErrInvalidAccuracy):
		return "invalid_accuracy"
	case errors.Is(err, ErrInvalidSpeed):
		return "invalid_speed"
	case errors.Is(err, ErrSessionNotActive):
		return "session_not_active"
	case errors.Is(err, ErrSessionAlreadyActive):
		return "session_already_active"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrGeofenceGeometry):
		return "geofence_geometry_error"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	case errors.Is(err, ErrCacheUnavailable):
		return "cache_unavailable"
	default:
		return "internal"
	}
}

// StatusCode maps a taxonomy error to the HTTP status the API layer responds
// with.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrInvalidCoordinates),
		errors.Is(err, ErrInvalidAccuracy),
		errors.Is(err, ErrInvalidSpeed),
		errors.Is(err, ErrGeofenceGeometry):
		return http.StatusBadRequest
	case errors.Is(err, ErrSessionNotActive),
		errors.Is(err, ErrSessionAlreadyActive):
		return http.StatusConflict
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrStorageUnavailable),
		errors.Is(err, ErrCacheUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
