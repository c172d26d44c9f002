package event

import (
	"testing"
	"time"

	"github.com/feeledger/backend/internal/domain/finance"
	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventSerializer_Deserialize(t *testing.T) {
	serializer := NewEventSerializer()
	serializer.Register("InvoiceGenerated", func() shared.DomainEvent { return &testEvent{} })

	original := newTestEvent("InvoiceGenerated")
	original.Timestamp = original.Timestamp.Truncate(time.Second)
	data, err := serializer.Serialize(original)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"data":"test data"`)

	restored, err := serializer.Deserialize("InvoiceGenerated", data)
	require.NoError(t, err)
	ev, ok := restored.(*testEvent)
	require.True(t, ok)
	assert.Equal(t, original.EventID(), ev.EventID())
	assert.Equal(t, original.AggregateID(), ev.AggregateID())
	assert.Equal(t, original.AggregateType(), ev.AggregateType())
	assert.True(t, original.OccurredAt().Equal(ev.OccurredAt()))
	assert.Equal(t, original.Data, ev.Data)
}

func TestEventSerializer_Deserialize_Errors(t *testing.T) {
	serializer := NewEventSerializer()
	serializer.Register("InvoiceGenerated", func() shared.DomainEvent { return &testEvent{} })

	_, err := serializer.Deserialize("Unknown", []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown event type")

	_, err = serializer.Deserialize("InvoiceGenerated", []byte(`not json`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal InvoiceGenerated")
}

func TestLedgerSerializer_KnowsLedgerEvents(t *testing.T) {
	serializer := NewLedgerSerializer()
	for _, et := range []string{
		finance.EventTypeInvoiceGenerated,
		finance.EventTypeInvoiceVoided,
		finance.EventTypePaymentCollected,
		finance.EventTypePaymentReversed,
		finance.EventTypePeriodClosed,
	} {
		assert.True(t, serializer.Known(et), et)
	}
	assert.False(t, serializer.Known("OrderCreated"))
}

func TestLedgerSerializer_PaymentCollected(t *testing.T) {
	serializer := NewLedgerSerializer()
	amount := valueobject.MustNewMoney(250000, valueobject.INR)
	p, err := finance.NewPayment(uuid.New(), amount, finance.PaymentMethodCash, "", "bursar", "", time.Date(2026, 4, 3, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	original := finance.NewPaymentCollectedEvent(p, valueobject.Zero(valueobject.INR))

	data, err := serializer.Serialize(original)
	require.NoError(t, err)

	restored, err := serializer.Deserialize(finance.EventTypePaymentCollected, data)
	require.NoError(t, err)
	ev, ok := restored.(*finance.PaymentCollectedEvent)
	require.True(t, ok)
	assert.Equal(t, original.EventID(), ev.EventID())
	assert.Equal(t, p.ID, ev.AggregateID())
	assert.True(t, amount.Equals(ev.Amount))
	assert.Equal(t, finance.PaymentMethodCash, ev.Method)
}
