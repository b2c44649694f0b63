package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/recipe-import/internal/importer/domain"
	"github.com/cuongbtq/recipe-import/shared/logger"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAcknowledger struct {
	mu      sync.Mutex
	settled map[uint64]string
	done    chan struct{}
	want    int
}

func newFakeAcknowledger(want int) *fakeAcknowledger {
	return &fakeAcknowledger{settled: make(map[uint64]string), done: make(chan struct{}), want: want}
}

func (a *fakeAcknowledger) record(tag uint64, result string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settled[tag] = result
	if len(a.settled) == a.want {
		close(a.done)
	}
	return nil
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	return a.record(tag, "ack")
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	if requeue {
		return a.record(tag, "requeue")
	}
	return a.record(tag, "reject")
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type fakeQueue struct {
	deliveries chan amqp.Delivery
	prefetch   int
}

func (q *fakeQueue) Qos(prefetchCount int) error {
	q.prefetch = prefetchCount
	return nil
}

func (q *fakeQueue) Consume(consumerTag string) (<-chan amqp.Delivery, error) {
	return q.deliveries, nil
}

type fakeRunner struct {
	mu      sync.Mutex
	results map[string]error
	runs    []string
}

func (r *fakeRunner) Run(ctx context.Context, jobID string, concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, jobID)
	return r.results[jobID]
}

type fakeResetter struct {
	mu        sync.Mutex
	reset     []string
	olderThan []time.Duration
}

func (r *fakeResetter) ResetStaleItems(ctx context.Context, jobID string, olderThan time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset = append(r.reset, jobID)
	r.olderThan = append(r.olderThan, olderThan)
	return 1, nil
}

const (
	jobOK        = "11111111-1111-1111-1111-111111111111"
	jobMissing   = "22222222-2222-2222-2222-222222222222"
	jobTransient = "33333333-3333-3333-3333-333333333333"
	jobAborted   = "44444444-4444-4444-4444-444444444444"
	jobRestarted = "55555555-5555-5555-5555-555555555555"
)

func TestWorker_SettlesDeliveries(t *testing.T) {
	ack := newFakeAcknowledger(7)
	queue := &fakeQueue{deliveries: make(chan amqp.Delivery, 8)}
	runner := &fakeRunner{results: map[string]error{
		jobMissing:   fmt.Errorf("load job: %w", domain.ErrJobNotFound),
		jobTransient: domain.NewRetryableError(fmt.Errorf("connection refused")),
		jobAborted:   fmt.Errorf("%w: claim failed", ErrJobAborted),
	}}
	resetter := &fakeResetter{}

	w := NewWorker(&Config{
		Logger:        logger.NewDiscard().Logger,
		Queue:         queue,
		Runner:        runner,
		Resetter:      resetter,
		WorkerID:      "worker-test",
		Concurrency:   3,
		MaxJobs:       2,
		PrefetchCount: 2,
		StaleAfter:    time.Minute,
	})

	send := func(tag uint64, body string, redelivered bool) {
		queue.deliveries <- amqp.Delivery{
			Acknowledger: ack,
			DeliveryTag:  tag,
			Body:         []byte(body),
			Redelivered:  redelivered,
		}
	}
	send(1, `{"job_id":"`+jobOK+`"}`, false)
	send(2, `not json`, false)
	send(3, `{"job_id":"not-a-uuid"}`, false)
	send(4, `{"job_id":"`+jobMissing+`"}`, false)
	send(5, `{"job_id":"`+jobTransient+`"}`, false)
	send(6, `{"job_id":"`+jobAborted+`"}`, false)
	send(7, `{"job_id":"`+jobRestarted+`"}`, true)

	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(context.Background()) }()

	select {
	case <-ack.done:
	case <-time.After(5 * time.Second):
		t.Fatal("deliveries were not settled")
	}
	close(queue.deliveries)

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "delivery channel closed")
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}

	assert.Equal(t, map[uint64]string{
		1: "ack",
		2: "reject",
		3: "reject",
		4: "reject",
		5: "requeue",
		6: "ack",
		7: "ack",
	}, ack.settled)
	assert.Equal(t, 2, queue.prefetch)
	assert.Equal(t, []string{jobRestarted}, resetter.reset)
	assert.Equal(t, []time.Duration{time.Minute}, resetter.olderThan)
	assert.ElementsMatch(t, []string{jobOK, jobMissing, jobTransient, jobAborted, jobRestarted}, runner.runs)
}

func TestWorker_StopsOnContextCancel(t *testing.T) {
	queue := &fakeQueue{deliveries: make(chan amqp.Delivery)}
	w := NewWorker(&Config{
		Logger:   logger.NewDiscard().Logger,
		Queue:    queue,
		Runner:   &fakeRunner{},
		WorkerID: "worker-test",
		MaxJobs:  1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(ctx) }()

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestParseJobMessage(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "valid", body: `{"job_id":"` + jobOK + `"}`},
		{name: "malformed json", body: `{"job_id":`, wantErr: true},
		{name: "missing job id", body: `{}`, wantErr: true},
		{name: "not a uuid", body: `{"job_id":"42"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := parseJobMessage([]byte(tt.body))
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidPayload)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, jobOK, msg.JobID)
		})
	}
}

func TestShouldRequeueJob(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "retryable", err: domain.NewRetryableError(fmt.Errorf("timeout")), want: true},
		{name: "wrapped retryable", err: fmt.Errorf("run: %w", domain.NewRetryableError(fmt.Errorf("timeout"))), want: true},
		{name: "job not found", err: domain.ErrJobNotFound, want: false},
		{name: "invalid payload", err: domain.ErrInvalidPayload, want: false},
		{name: "validation", err: domain.NewValidationError("concurrency", "must be greater than 0"), want: false},
		{name: "unknown", err: fmt.Errorf("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldRequeueJob(tt.err))
		})
	}
}
