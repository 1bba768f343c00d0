// Package notification delivers geofence events to interested watchers.
// The engine only talks to the Sink interface; web push is one adapter.
package notification

import (
	"context"

	"delivery-tracking-backend/internal/model"
)

// Sink receives geofence events that passed a fence's notification policy.
// Implementations must not block the caller.
type Sink interface {
	Notify(ctx context.Context, event model.GeofenceEvent)
}
