package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("event dispatcher closed")

// KafkaDispatcher queues events locally and sends them from background
// workers with bounded retries. Publish only enqueues, so a slow broker
// never delays a note mutation; when the queue stays full past the caller's
// deadline the event is dropped.
type KafkaDispatcher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
	opts     KafkaDispatcherOptions

	queue    chan NoteEvent
	inflight *semaphore.Weighted

	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	dropped atomic.Int64
	sent    atomic.Int64
}

type KafkaDispatcherOptions struct {
	QueueSize   int           `mapstructure:"queue_size"`
	Workers     int           `mapstructure:"workers"`
	MaxInFlight int64         `mapstructure:"max_in_flight"`
	MaxRetry    int           `mapstructure:"max_retry"`
	BaseBackoff time.Duration `mapstructure:"base_backoff"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff"`
}

func (o KafkaDispatcherOptions) withDefaults() KafkaDispatcherOptions {
	if o.QueueSize <= 0 {
		o.QueueSize = 1024
	}
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.MaxInFlight <= 0 {
		o.MaxInFlight = int64(o.Workers)
	}
	if o.MaxRetry < 0 {
		o.MaxRetry = 0
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = 100 * time.Millisecond
	}
	if o.MaxBackoff < o.BaseBackoff {
		o.MaxBackoff = o.BaseBackoff
	}
	return o
}

// NewKafkaDispatcher starts the workers. Call Close to drain the queue.
func NewKafkaDispatcher(producer sarama.SyncProducer, topic string, logger *slog.Logger, opt KafkaDispatcherOptions) *KafkaDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	opt = opt.withDefaults()
	d := &KafkaDispatcher{
		producer: producer,
		topic:    topic,
		logger:   logger,
		opts:     opt,
		queue:    make(chan NoteEvent, opt.QueueSize),
		inflight: semaphore.NewWeighted(opt.MaxInFlight),
	}
	for i := 0; i < opt.Workers; i++ {
		d.wg.Add(1)
		go d.workerLoop(i)
	}
	return d
}

// NewSyncProducer builds the producer the dispatcher expects.
func NewSyncProducer(brokers []string, clientID string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Retry.Max = 0
	return sarama.NewSyncProducer(brokers, cfg)
}

// Publish enqueues evt. When the queue is full it waits until ctx is done.
func (d *KafkaDispatcher) Publish(ctx context.Context, evt NoteEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- evt:
		return nil
	case <-ctx.Done():
		d.dropped.Add(1)
		return ctx.Err()
	}
}

// Close stops accepting events and waits for queued ones to be sent or
// dropped.
func (d *KafkaDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

// Sent is the number of events delivered.
func (d *KafkaDispatcher) Sent() int64 { return d.sent.Load() }

// Dropped is the number of events given up on.
func (d *KafkaDispatcher) Dropped() int64 { return d.dropped.Load() }

func (d *KafkaDispatcher) workerLoop(workerID int) {
	defer d.wg.Done()
	for evt := range d.queue {
		d.sendWithRetry(workerID, evt)
	}
}

func (d *KafkaDispatcher) sendWithRetry(workerID int, evt NoteEvent) {
	for attempt := 0; attempt <= d.opts.MaxRetry; attempt++ {
		_ = d.inflight.Acquire(context.Background(), 1)
		err := d.sendOnce(evt)
		d.inflight.Release(1)

		if err == nil {
			d.sent.Add(1)
			return
		}
		if attempt == d.opts.MaxRetry {
			d.dropped.Add(1)
			d.logger.Error("kafka send failed, dropping event",
				"type", evt.Type,
				"interview_id", evt.InterviewID,
				"note_id", evt.NoteID,
				"worker", workerID,
				"error", err,
			)
			return
		}
		time.Sleep(d.backoff(attempt))
	}
}

// backoff doubles from BaseBackoff up to MaxBackoff.
func (d *KafkaDispatcher) backoff(attempt int) time.Duration {
	backoff := d.opts.BaseBackoff
	for i := 0; i < attempt && backoff < d.opts.MaxBackoff; i++ {
		backoff *= 2
	}
	if backoff > d.opts.MaxBackoff {
		backoff = d.opts.MaxBackoff
	}
	return backoff
}

func (d *KafkaDispatcher) sendOnce(evt NoteEvent) error {
	if d.producer == nil || d.topic == "" {
		return nil
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: d.topic,
		Key:   sarama.StringEncoder(evt.InterviewID),
		Value: sarama.ByteEncoder(b),
	}
	_, _, err = d.producer.SendMessage(msg)
	return err
}
