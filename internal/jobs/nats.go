package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSPublisher publishes job events to NATS for external consumers.
//
// Events go to subjects jobs.{job_id}.{event}, one subject per lifecycle
// step, so consumers can subscribe to a single job (jobs.{id}.>) or to one
// event type across jobs (jobs.*.failed).
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to the NATS server at url.
func NewNATSPublisher(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{conn: conn}, nil
}

// Publish sends one job event.
func (p *NATSPublisher) Publish(event Event) error {
	subject := fmt.Sprintf("jobs.%s.%s", event.Job.ID, event.Type)

	payload, err := json.Marshal(struct {
		Job       Job       `json:"job"`
		Timestamp time.Time `json:"timestamp"`
	}{Job: event.Job, Timestamp: time.Now()})
	if err != nil {
		return fmt.Errorf("marshal job event: %w", err)
	}

	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish job event: %w", err)
	}
	return nil
}

// Close drains and closes the connection.
func (p *NATSPublisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return err
	}
	return nil
}

var _ Publisher = (*NATSPublisher)(nil)

// FollowEvents subscribes to job events on the NATS server at url and calls
// fn for each decoded event until ctx is done. An empty jobID follows all
// jobs; otherwise only subjects for that job are delivered.
func FollowEvents(ctx context.Context, url, jobID string, fn func(eventType string, job Job, at time.Time)) error {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	defer conn.Close()

	subject := "jobs.>"
	if jobID != "" {
		subject = fmt.Sprintf("jobs.%s.>", jobID)
	}

	msgs := make(chan *nats.Msg, eventBuffer)
	sub, err := conn.ChanSubscribe(subject, msgs)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", subject, err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-msgs:
			var payload struct {
				Job       Job       `json:"job"`
				Timestamp time.Time `json:"timestamp"`
			}
			if err := json.Unmarshal(msg.Data, &payload); err != nil {
				continue
			}
			parts := strings.Split(msg.Subject, ".")
			eventType := parts[len(parts)-1]
			fn(eventType, payload.Job, payload.Timestamp)
		}
	}
}
