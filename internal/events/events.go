package events

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"offer-api/internal/models"
)

// EventType represents the type of event.
type EventType string

const (
	// EventOfferCreated is emitted after a new offer is stored.
	EventOfferCreated EventType = "offer.created"
	// EventOfferReplaced is emitted after an existing offer is overwritten.
	EventOfferReplaced EventType = "offer.replaced"
	// EventOfferDeleted is emitted after a delete, whether or not the offer existed.
	EventOfferDeleted EventType = "offer.deleted"
)

// Event represents an event in the system.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      interface{}
}

// OfferData is the payload of every offer event.
type OfferData struct {
	OfferID   string
	OfferType models.OfferType
	Title     string
}

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Manager manages event handlers and event publishing.
type Manager struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	enabled  bool
	logger   logrus.FieldLogger
	wg       sync.WaitGroup
}

// NewManager creates a new event manager. Handler failures are logged to
// logger.
func NewManager(enabled bool, logger logrus.FieldLogger) *Manager {
	return &Manager{
		handlers: make(map[EventType][]Handler),
		enabled:  enabled,
		logger:   logger,
	}
}

// Subscribe subscribes a handler to a specific event type.
func (m *Manager) Subscribe(eventType EventType, handler Handler) {
	if !m.enabled {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers[eventType] = append(m.handlers[eventType], handler)
}

// Publish publishes an event to all subscribed handlers. Handlers run on
// their own goroutines with a context detached from the caller's deadline.
func (m *Manager) Publish(ctx context.Context, eventType EventType, data interface{}) {
	m.mu.RLock()
	enabled := m.enabled
	handlers := m.handlers[eventType]
	m.mu.RUnlock()

	if !enabled || len(handlers) == 0 {
		return
	}

	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	ctx = context.WithoutCancel(ctx)
	for _, handler := range handlers {
		m.wg.Add(1)
		go func(h Handler) {
			defer m.wg.Done()
			if err := h(ctx, event); err != nil {
				m.logger.WithError(err).WithField("event", string(event.Type)).Warn("event handler failed")
			}
		}(handler)
	}
}

// PublishOffer publishes an offer event.
func (m *Manager) PublishOffer(ctx context.Context, eventType EventType, offer models.Offer) {
	m.Publish(ctx, eventType, OfferData{
		OfferID:   offer.OfferID,
		OfferType: offer.Type,
		Title:     offer.Title,
	})
}

// PublishOfferDeleted publishes a delete event. Only the id is known.
func (m *Manager) PublishOfferDeleted(ctx context.Context, offerID string) {
	m.Publish(ctx, EventOfferDeleted, OfferData{OfferID: offerID})
}

// Shutdown stops accepting events and waits for running handlers.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.enabled = false
	m.handlers = make(map[EventType][]Handler)
	m.mu.Unlock()

	m.wg.Wait()
}

// AuditHandler writes one audit log entry per offer event.
func AuditHandler(logger logrus.FieldLogger) Handler {
	return func(ctx context.Context, event Event) error {
		fields := logrus.Fields{
			"audit":     true,
			"event":     string(event.Type),
			"timestamp": event.Timestamp.UTC().Format(time.RFC3339Nano),
		}
		if data, ok := event.Data.(OfferData); ok {
			fields["offer_id"] = data.OfferID
			if data.OfferType != "" {
				fields["offer_type"] = string(data.OfferType)
			}
			if data.Title != "" {
				fields["title"] = data.Title
			}
		}
		logger.WithFields(fields).Info("offer audit")
		return nil
	}
}

// SubscribeAudit attaches AuditHandler to every offer event.
func (m *Manager) SubscribeAudit(logger logrus.FieldLogger) {
	for _, t := range []EventType{EventOfferCreated, EventOfferReplaced, EventOfferDeleted} {
		m.Subscribe(t, AuditHandler(logger))
	}
}
