package bus

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palletscan/palletscan/pkg/log"
	"github.com/palletscan/palletscan/pkg/types"
)

type stubAcker struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (a *stubAcker) Ack(uint64, bool) error { a.acked = true; return nil }
func (a *stubAcker) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked = true
	a.requeue = requeue
	return nil
}
func (a *stubAcker) Reject(uint64, bool) error { return nil }

func testBus() *Bus {
	return &Bus{logger: log.WithComponent("bus")}
}

func jobDelivery(t *testing.T, acker *stubAcker) amqp.Delivery {
	t.Helper()
	body, encoding, err := encodeJob(&types.Job{TaskID: "t1", ImagePath: "img.jpg"}, false)
	require.NoError(t, err)
	return amqp.Delivery{
		Acknowledger:    acker,
		Body:            body,
		ContentEncoding: encoding,
	}
}

func TestHandleDeliveryAcksOnSuccess(t *testing.T) {
	acker := &stubAcker{}
	testBus().handleDelivery(context.Background(), jobDelivery(t, acker), func(context.Context, *types.Job) error {
		return nil
	})

	assert.True(t, acker.acked)
	assert.False(t, acker.nacked)
}

func TestHandleDeliveryDiscardsTerminalFailure(t *testing.T) {
	acker := &stubAcker{}
	testBus().handleDelivery(context.Background(), jobDelivery(t, acker), func(context.Context, *types.Job) error {
		return errors.New("task failed")
	})

	assert.True(t, acker.nacked)
	assert.False(t, acker.requeue)
}

func TestHandleDeliveryRequeuesUncommittedFailure(t *testing.T) {
	acker := &stubAcker{}
	testBus().handleDelivery(context.Background(), jobDelivery(t, acker), func(context.Context, *types.Job) error {
		return Requeue(errors.New("store unavailable"))
	})

	assert.True(t, acker.nacked)
	assert.True(t, acker.requeue, "message without a terminal row must be redelivered")
	assert.False(t, acker.acked)
}

func TestHandleDeliveryRequeuesWrappedFailure(t *testing.T) {
	acker := &stubAcker{}
	inner := Requeue(errors.New("store unavailable"))
	testBus().handleDelivery(context.Background(), jobDelivery(t, acker), func(context.Context, *types.Job) error {
		return errors.Join(errors.New("context"), inner)
	})

	assert.True(t, acker.requeue)
}

func TestHandleDeliveryDiscardsUndecodable(t *testing.T) {
	acker := &stubAcker{}
	d := amqp.Delivery{Acknowledger: acker, Body: []byte("not json")}
	testBus().handleDelivery(context.Background(), d, func(context.Context, *types.Job) error {
		t.Fatal("handler must not run for an undecodable message")
		return nil
	})

	assert.True(t, acker.nacked)
	assert.False(t, acker.requeue)
}

func TestRequeueErrorUnwraps(t *testing.T) {
	cause := errors.New("deadlock")
	err := Requeue(cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "deadlock", err.Error())
}
