package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type funcHandler struct {
	topic string
	fn    func([]byte) error
}

func (h funcHandler) Topic() string                            { return h.topic }
func (h funcHandler) Handle(_ context.Context, b []byte) error { return h.fn(b) }

func testConsumer(t *testing.T, h MessageHandler, r *fakeReader) *Consumer {
	t.Helper()
	c := newConsumer(ConsumerConfig{Workers: 1, BufferSize: 4, RetryMax: 2, BackoffMin: time.Millisecond, BackoffMax: 2 * time.Millisecond}, nil)
	c.RegisterHandler(h)
	c.readers[h.Topic()] = r
	return c
}

func TestConsumerProcessSuccessCommits(t *testing.T) {
	r := &fakeReader{}
	var got []string
	c := testConsumer(t, funcHandler{topic: "forecast.requests", fn: func(b []byte) error {
		got = append(got, string(b))
		return nil
	}}, r)

	c.process(kafka.Message{Topic: "forecast.requests", Value: []byte(`{"symbol":"FPT"}`)})
	assert.Equal(t, []string{`{"symbol":"FPT"}`}, got)
	assert.Equal(t, 1, r.commits())
}

func TestConsumerRetriesThenSucceeds(t *testing.T) {
	r := &fakeReader{}
	calls := 0
	c := testConsumer(t, funcHandler{topic: "t", fn: func([]byte) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}}, r)

	c.process(kafka.Message{Topic: "t"})
	assert.Equal(t, 3, calls)
	assert.Equal(t, 1, r.commits())
}

func TestConsumerFailureWithoutDLQDoesNotCommit(t *testing.T) {
	r := &fakeReader{}
	calls := 0
	c := testConsumer(t, funcHandler{topic: "t", fn: func([]byte) error {
		calls++
		return errors.New("bad payload")
	}}, r)

	c.process(kafka.Message{Topic: "t"})
	assert.Equal(t, 3, calls) // first try + RetryMax
	assert.Zero(t, r.commits())
}

func TestConsumerFailureGoesToDLQ(t *testing.T) {
	r := &fakeReader{}
	dlq := &fakeWriter{}
	c := testConsumer(t, funcHandler{topic: "t", fn: func([]byte) error {
		panic("nil map")
	}}, r)
	c.dlq = dlq

	c.process(kafka.Message{Topic: "t", Key: []byte("FPT"), Value: []byte("x")})
	require.Len(t, dlq.msgs, 1)
	assert.Equal(t, []byte("x"), dlq.msgs[0].Value)
	assert.Equal(t, "source_topic", dlq.msgs[0].Headers[0].Key)
	assert.Equal(t, []byte("t"), dlq.msgs[0].Headers[0].Value)
	assert.Contains(t, string(dlq.msgs[0].Headers[1].Value), "panic")
	assert.Equal(t, 1, r.commits())
}

func TestConsumerStartStop(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{
		{Topic: "t", Value: []byte("1")},
		{Topic: "t", Value: []byte("2")},
	}}
	var mu sync.Mutex
	var seen []string
	c := testConsumer(t, funcHandler{topic: "t", fn: func(b []byte) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, string(b))
		return nil
	}}, r)

	require.NoError(t, c.Start())
	require.Eventually(t, func() bool { return r.commits() == 2 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"1", "2"}, seen)
}

func TestStartWithoutHandlers(t *testing.T) {
	c := newConsumer(ConsumerConfig{}, nil)
	assert.Error(t, c.Start())
}

func TestBackoffWithJitterBounds(t *testing.T) {
	for attempt := 1; attempt < 12; attempt++ {
		d := backoffWithJitter(100*time.Millisecond, time.Second, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}
}
