package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var errTransient = errors.New("resource busy")

type fakeSession struct {
	sarama.ConsumerGroupSession
	ctx context.Context

	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Context() context.Context { return s.ctx }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

func (s *fakeSession) markedOffsets() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.marked...)
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func newClaim(offsets ...int64) *fakeClaim {
	ch := make(chan *sarama.ConsumerMessage, len(offsets))
	for _, offset := range offsets {
		ch <- &sarama.ConsumerMessage{Topic: "payment_events", Offset: offset}
	}
	close(ch)
	return &fakeClaim{messages: ch}
}

func newTestHandler(handler HandlerFunc) *saramaHandler {
	return &saramaHandler{
		handler: handler,
		retry:   RetryPolicy{InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond},
		logger:  zap.NewNop(),
		tracer:  otel.Tracer("test"),
	}
}

func TestConsumeClaim_RetriesFailedMessageBeforeMovingOn(t *testing.T) {
	attempts := map[int64]int{}
	var order []int64
	h := newTestHandler(func(_ context.Context, msg *sarama.ConsumerMessage) error {
		attempts[msg.Offset]++
		order = append(order, msg.Offset)
		if msg.Offset == 5 && attempts[5] < 3 {
			return errTransient
		}
		return nil
	})

	session := &fakeSession{ctx: context.Background()}
	require.NoError(t, h.ConsumeClaim(session, newClaim(5, 6)))

	assert.Equal(t, 3, attempts[5])
	assert.Equal(t, 1, attempts[6])
	assert.Equal(t, []int64{5, 5, 5, 6}, order)
	assert.Equal(t, []int64{5, 6}, session.markedOffsets())
}

func TestConsumeClaim_PermanentFailureIsMarked(t *testing.T) {
	calls := 0
	h := newTestHandler(func(_ context.Context, msg *sarama.ConsumerMessage) error {
		calls++
		if msg.Offset == 5 {
			return Permanent(errors.New("order not found"))
		}
		return nil
	})

	session := &fakeSession{ctx: context.Background()}
	require.NoError(t, h.ConsumeClaim(session, newClaim(5, 6)))

	assert.Equal(t, 2, calls)
	assert.Equal(t, []int64{5, 6}, session.markedOffsets())
}

func TestConsumeClaim_SessionEndLeavesFailedMessageUnmarked(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newTestHandler(func(_ context.Context, msg *sarama.ConsumerMessage) error {
		if msg.Offset == 5 {
			cancel()
			return errTransient
		}
		return nil
	})

	session := &fakeSession{ctx: ctx}
	require.NoError(t, h.ConsumeClaim(session, newClaim(4, 5, 6)))

	assert.Equal(t, []int64{4}, session.markedOffsets())
}

func TestPermanent_NilStaysNil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
}
