package event

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/feeledger/backend/internal/domain/finance"
	"github.com/feeledger/backend/internal/domain/shared"
)

// EventFactory returns an empty event to decode an outbox payload into
type EventFactory func() shared.DomainEvent

// EventSerializer encodes domain events as JSON outbox payloads and rebuilds
// them by event type.
type EventSerializer struct {
	mu        sync.RWMutex
	factories map[string]EventFactory
}

// NewEventSerializer creates a serializer with no known event types
func NewEventSerializer() *EventSerializer {
	return &EventSerializer{factories: make(map[string]EventFactory)}
}

// NewLedgerSerializer returns a serializer that knows every event the ledger raises
func NewLedgerSerializer() *EventSerializer {
	s := NewEventSerializer()
	s.Register(finance.EventTypeInvoiceGenerated, func() shared.DomainEvent { return &finance.InvoiceGeneratedEvent{} })
	s.Register(finance.EventTypeInvoiceVoided, func() shared.DomainEvent { return &finance.InvoiceVoidedEvent{} })
	s.Register(finance.EventTypePaymentCollected, func() shared.DomainEvent { return &finance.PaymentCollectedEvent{} })
	s.Register(finance.EventTypePaymentReversed, func() shared.DomainEvent { return &finance.PaymentReversedEvent{} })
	s.Register(finance.EventTypePeriodClosed, func() shared.DomainEvent { return &finance.PeriodClosedEvent{} })
	return s
}

// Register makes eventType decodable. A later registration replaces an earlier one.
func (s *EventSerializer) Register(eventType string, factory EventFactory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factories[eventType] = factory
}

// Known reports whether eventType can be decoded
func (s *EventSerializer) Known(eventType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.factories[eventType]
	return ok
}

// Serialize encodes an event. Unknown types are still encoded; they only fail on Deserialize.
func (s *EventSerializer) Serialize(event shared.DomainEvent) ([]byte, error) {
	return json.Marshal(event)
}

// Deserialize rebuilds the event stored under eventType
func (s *EventSerializer) Deserialize(eventType string, data []byte) (shared.DomainEvent, error) {
	s.mu.RLock()
	factory, ok := s.factories[eventType]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}

	event := factory()
	if err := json.Unmarshal(data, event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", eventType, err)
	}
	return event, nil
}
