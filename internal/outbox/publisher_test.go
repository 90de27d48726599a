package outbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trigintafaces/excalibur-dispatch/internal/dispatcher"
	"github.com/trigintafaces/excalibur-dispatch/internal/serializer"
	"github.com/trigintafaces/excalibur-dispatch/internal/transport"
)

type orderPlaced struct {
	OrderID string `json:"orderId"`
}

func newTestSerializer() *serializer.JSONSerializer {
	s := serializer.NewJSON()
	s.RegisterType("OrderPlaced", orderPlaced{})
	return s
}

func TestPublisher_StageAndDrainPublishesInOrder(t *testing.T) {
	store := NewMemory()
	bus := dispatcher.New()
	var seen []string
	bus.Subscribe("OrderPlaced", func(ctx context.Context, message dispatcher.Message) error {
		seen = append(seen, message.TypeName)
		return nil
	})

	p := New(store, bus, transport.NewRegistry(), newTestSerializer(), Options{})

	for _, dest := range []string{"q1", "q2", "q3"} {
		_, err := p.Publish(context.Background(), orderPlaced{OrderID: dest}, "OrderPlaced", dest, nil, nil, "")
		require.NoError(t, err)
	}

	result, err := p.PublishPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, result.SuccessCount)
	require.Equal(t, 0, result.FailureCount)
	require.Equal(t, []string{"OrderPlaced", "OrderPlaced", "OrderPlaced"}, seen)
}

func TestPublisher_TransportFanOutPartialFailure(t *testing.T) {
	store := NewMemory()
	bus := dispatcher.New()
	registry := transport.NewRegistry()

	kafkaFails := &failingAdapter{err: errors.New("transport unavailable")}
	sqsOK := &failingAdapter{}
	registry.Register("kafka", "Kafka", kafkaFails)
	registry.Register("sqs", "SQS", sqsOK)

	p := New(store, bus, registry, newTestSerializer(), Options{})
	msg, err := p.Publish(context.Background(), orderPlaced{OrderID: "o1"}, "OrderPlaced", "q1", nil, nil, "")
	require.NoError(t, err)
	require.NoError(t, store.StageTransportDeliveries(context.Background(), msg.ID, []TransportDelivery{
		{TransportName: "kafka", Destination: "kafka-topic"},
		{TransportName: "sqs", Destination: "sqs-queue"},
	}))

	_, err = p.PublishPendingTransportDeliveries(context.Background(), "kafka", 10)
	require.NoError(t, err)
	_, err = p.PublishPendingTransportDeliveries(context.Background(), "sqs", 10)
	require.NoError(t, err)

	kafkaRow := store.deliveries[msg.ID]["kafka"]
	sqsRow := store.deliveries[msg.ID]["sqs"]
	require.Equal(t, TransportFailed, kafkaRow.Status)
	require.Equal(t, TransportSent, sqsRow.Status)

	stillStaged := store.messages[msg.ID]
	require.NotEqual(t, StatusPublished, stillStaged.Status)
}

func TestPublisher_RetryFailedRejectsNegativeMaxRetries(t *testing.T) {
	p := New(NewMemory(), dispatcher.New(), transport.NewRegistry(), newTestSerializer(), Options{})
	_, err := p.RetryFailed(context.Background(), -1)
	require.Error(t, err)
}

func TestPublisher_StatisticsStartAtFullSuccessRate(t *testing.T) {
	p := New(NewMemory(), dispatcher.New(), transport.NewRegistry(), newTestSerializer(), Options{})
	require.Equal(t, float64(100), p.Statistics().RollingSuccessRate)
}

type failingAdapter struct {
	err error
}

func (a *failingAdapter) Send(ctx context.Context, message transport.Message, destination string) error {
	return a.err
}
