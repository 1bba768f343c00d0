package notification

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus"

	"delivery-tracking-backend/internal/model"
)

// Sender defines the interface for sending a single web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is the real Sender backed by the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// SubscriptionSource is the slice of the store the worker pool needs.
type SubscriptionSource interface {
	SubscriptionsForTrip(ctx context.Context, tripID string) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
}

// WorkerPool fans geofence events out to a trip's push subscribers without
// blocking the ingestion path. It implements Sink.
type WorkerPool struct {
	size    int
	jobs    chan model.GeofenceEvent
	subs    SubscriptionSource
	webpush *webpush.Options
	sender  Sender
}

// NewWorkerPool creates a worker pool of the given size.
func NewWorkerPool(size int, subs SubscriptionSource, webpushOptions *webpush.Options) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan model.GeofenceEvent, size*4),
		subs:    subs,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// SetSender swaps the Sender, for tests.
func (wp *WorkerPool) SetSender(s Sender) {
	wp.sender = s
}

// Start launches the worker goroutines; they exit when ctx is cancelled.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// Notify queues an event for delivery. A full queue drops the event rather
// than stalling ingestion.
func (wp *WorkerPool) Notify(_ context.Context, event model.GeofenceEvent) {
	select {
	case wp.jobs <- event:
	default:
		logrus.WithFields(logrus.Fields{
			"trip_id":  event.TripID,
			"geofence": event.GeofenceID,
		}).Warn("notification queue full, dropping event")
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	logrus.WithField("worker", id).Debug("notification worker started")
	for {
		select {
		case event := <-wp.jobs:
			wp.deliver(ctx, event)
		case <-ctx.Done():
			logrus.WithField("worker", id).Debug("notification worker shutting down")
			return
		}
	}
}

// deliver fetches the trip's subscriptions and pushes the event to each.
func (wp *WorkerPool) deliver(ctx context.Context, event model.GeofenceEvent) {
	subscriptions, err := wp.subs.SubscriptionsForTrip(ctx, event.TripID)
	if err != nil {
		logrus.WithField("trip_id", event.TripID).WithError(err).Error("failed to fetch trip subscriptions")
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"title": wp.title(event),
		"event": event,
	})
	if err != nil {
		logrus.WithError(err).Error("failed to marshal push payload")
		return
	}

	for _, sub := range subscriptions {
		wp.send(ctx, sub, payload)
	}
}

func (wp *WorkerPool) title(event model.GeofenceEvent) string {
	switch event.Kind {
	case model.EventEnter:
		return "Courier entered a geofence zone"
	case model.EventExit:
		return "Courier left a geofence zone"
	case model.EventDwell:
		return "Courier has been dwelling in a geofence zone"
	default:
		return "Geofence update"
	}
}

// send pushes one notification and prunes expired subscriptions.
func (wp *WorkerPool) send(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		logrus.WithField("endpoint", sub.Endpoint).WithError(err).Error("failed to send push notification")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		logrus.WithField("endpoint", sub.Endpoint).Info("push subscription expired, deleting")
		if err := wp.subs.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			logrus.WithField("endpoint", sub.Endpoint).WithError(err).Error("failed to delete expired subscription")
		}
	}
}
