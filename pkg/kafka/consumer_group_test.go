package kafka

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	ctx context.Context

	mu        sync.Mutex
	marked    []int64
	resets    []int64
	committed int
}

func (s *fakeSession) Claims() map[string][]int32 { return nil }
func (s *fakeSession) MemberID() string           { return "member" }
func (s *fakeSession) GenerationID() int32        { return 1 }
func (s *fakeSession) Context() context.Context   { return s.ctx }

func (s *fakeSession) MarkOffset(_ string, _ int32, _ int64, _ string) {}

func (s *fakeSession) Commit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed++
}

func (s *fakeSession) ResetOffset(_ string, _ int32, offset int64, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets = append(s.resets, offset)
}

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string                            { return "orders" }
func (c *fakeClaim) Partition() int32                         { return 0 }
func (c *fakeClaim) InitialOffset() int64                     { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func runClaim(t *testing.T, h *claimHandler, session *fakeSession, claim *fakeClaim) <-chan struct{} {
	t.Helper()

	done := make(chan struct{})
	go func() {
		defer close(done)
		require.NoError(t, h.ConsumeClaim(session, claim))
	}()
	return done
}

func TestConsumeClaim_CompleteMarksAndContinues(t *testing.T) {
	deliveries := make(chan *delivery)
	h := &claimHandler{deliveries: deliveries, closed: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	session := &fakeSession{ctx: ctx}
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 2)}
	claim.messages <- &sarama.ConsumerMessage{Topic: "orders", Offset: 10, Value: []byte("a")}
	claim.messages <- &sarama.ConsumerMessage{Topic: "orders", Offset: 11, Value: []byte("b")}

	done := runClaim(t, h, session, claim)

	first := <-deliveries
	require.Equal(t, []byte("a"), first.Body())

	select {
	case <-deliveries:
		t.Fatal("second message handed out before the first was acknowledged")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, first.Complete(context.Background()))

	second := <-deliveries
	require.NoError(t, second.Complete(context.Background()))

	cancel()
	<-done

	require.Equal(t, []int64{10, 11}, session.marked)
	require.Empty(t, session.resets)
}

func TestConsumeClaim_AbandonResetsOffsetAndEndsClaim(t *testing.T) {
	deliveries := make(chan *delivery)
	h := &claimHandler{deliveries: deliveries, closed: make(chan struct{})}

	session := &fakeSession{ctx: context.Background()}
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 2)}
	claim.messages <- &sarama.ConsumerMessage{Topic: "orders", Offset: 5}
	claim.messages <- &sarama.ConsumerMessage{Topic: "orders", Offset: 6}

	done := runClaim(t, h, session, claim)

	d := <-deliveries
	require.NoError(t, d.Abandon(context.Background()))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("claim did not end after abandon")
	}

	require.Equal(t, []int64{5}, session.resets)
	require.Equal(t, 1, session.committed)
	require.Empty(t, session.marked)
}

func TestDelivery_SettlesOnce(t *testing.T) {
	session := &fakeSession{ctx: context.Background()}
	d := newDelivery(session, &sarama.ConsumerMessage{
		Topic:   "orders",
		Offset:  3,
		Headers: []*sarama.RecordHeader{{Key: []byte(HeaderEventType), Value: []byte("OrderCreatedEvent")}},
	})

	require.Equal(t, "orders", d.Destination())
	require.Equal(t, "OrderCreatedEvent", d.Headers()[HeaderEventType])

	require.NoError(t, d.Complete(context.Background()))
	require.NoError(t, d.Abandon(context.Background()))

	require.Equal(t, []int64{3}, session.marked)
	require.Empty(t, session.resets)
}
