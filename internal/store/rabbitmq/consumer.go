package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
)

const (
	attemptHeader = "x-attempt"
	retryDelay    = 5 * time.Second
)

// Handler processes one job id. An error sends the message to the retry queue until
// MaxAttempts is reached, then to the dead-letter queue.
type Handler func(ctx context.Context, jobID string) error

type Consumer struct {
	conn        *amqp.Connection
	ch          *amqp.Channel
	queue       string
	concurrency int
	MaxAttempts int

	pubMu sync.Mutex // retries publish from worker goroutines
}

func NewConsumer(url, queue string, concurrency int) (*Consumer, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := declareQueues(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	// strict concurrency control
	if err := ch.Qos(concurrency, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Consumer{conn: conn, ch: ch, queue: queue, concurrency: concurrency, MaxAttempts: 3}, nil
}

func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Run consumes until ctx is cancelled or the delivery channel closes, then waits for
// in-flight jobs.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	msgs, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	log.Printf("worker started, queue=%s concurrency=%d", c.queue, c.concurrency)

	jobs := make(chan amqp.Delivery, c.concurrency*2)
	var wg sync.WaitGroup
	wg.Add(c.concurrency)
	for i := 0; i < c.concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				c.handle(ctx, workerID, d, h)
			}
		}(i)
	}

	defer func() {
		close(jobs)
		wg.Wait()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Printf("worker shutting down")
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			jobs <- d
		}
	}
}

func (c *Consumer) handle(ctx context.Context, workerID int, d amqp.Delivery, h Handler) {
	jobID, err := decodeJob(d.Body)
	if err != nil {
		log.Errorf("worker=%d bad message: %v", workerID, err)
		_ = d.Nack(false, false)
		return
	}

	start := time.Now()
	if err := h(ctx, jobID); err != nil {
		attempt := attemptOf(d.Headers) + 1
		log.Errorf("worker=%d job %s failed attempt=%d cost=%s err=%v", workerID, jobID, attempt, time.Since(start), err)
		if attempt >= c.MaxAttempts {
			_ = d.Nack(false, false)
			return
		}
		if err := c.retry(ctx, d, attempt); err != nil {
			log.Errorf("worker=%d retry publish failed job=%s err=%v", workerID, jobID, err)
			_ = d.Nack(false, false)
			return
		}
		_ = d.Ack(false)
		return
	}

	if err := d.Ack(false); err != nil {
		log.Errorf("worker=%d ack failed job=%s err=%v", workerID, jobID, err)
	}
}

func (c *Consumer) retry(ctx context.Context, d amqp.Delivery, attempt int) error {
	cctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	return c.ch.PublishWithContext(cctx, "", retryQueue(c.queue), false, false, amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    d.MessageId,
		Type:         d.Type,
		Body:         d.Body,
		Timestamp:    time.Now(),
		Expiration:   strconv.FormatInt(retryDelay.Milliseconds(), 10),
		Headers:      amqp.Table{attemptHeader: int32(attempt)},
	})
}

func decodeJob(body []byte) (string, error) {
	var m JobMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return "", err
	}
	if m.JobID == "" {
		return "", errors.New("empty job_id")
	}
	return m.JobID, nil
}

func attemptOf(h amqp.Table) int {
	switch v := h[attemptHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
