// Package events publishes domain events to NATS. Publishing is best effort:
// a missing or failing broker never fails the request that emitted the event.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"cardsite-backend/internal/logging"

	"github.com/nats-io/nats.go"
)

const (
	SubjectPaymentCompleted      = "cardsite.payment.completed"
	SubjectSubscriptionRenewed   = "cardsite.subscription.renewed"
	SubjectSubscriptionCancelled = "cardsite.subscription.cancelled"
	SubjectSubscriptionExpired   = "cardsite.subscription.expired"
	SubjectAnalyticsEvent        = "cardsite.analytics.event"
	SubjectLeadCreated           = "cardsite.lead.created"
)

// Envelope wraps every payload put on the wire.
type Envelope struct {
	Subject    string    `json:"subject"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

type Publisher interface {
	Publish(subject string, data any) error
	Close()
}

var (
	mu      sync.RWMutex
	current Publisher = noopPublisher{}
)

// Init connects to NATS. An empty url leaves publishing disabled.
func Init(url string) error {
	if url == "" {
		logging.L.Warn("NATS_URL not set, event publishing disabled")
		return nil
	}

	nc, err := nats.Connect(url,
		nats.Name("cardsite-backend"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logging.L.WithError(err).Warn("nats disconnected")
			}
		}),
	)
	if err != nil {
		return err
	}

	Use(&natsPublisher{nc: nc})
	logging.L.WithField("url", nc.ConnectedUrl()).Info("nats publisher connected")
	return nil
}

// Use swaps the active publisher and returns the previous one.
func Use(p Publisher) Publisher {
	mu.Lock()
	defer mu.Unlock()
	prev := current
	current = p
	return prev
}

// Emit publishes data under subject and logs failures.
func Emit(subject string, data any) {
	mu.RLock()
	p := current
	mu.RUnlock()

	if err := p.Publish(subject, data); err != nil {
		logging.L.WithError(err).WithField("subject", subject).Warn("event not published")
	}
}

func Close() {
	mu.RLock()
	p := current
	mu.RUnlock()
	p.Close()
}

type natsPublisher struct {
	nc *nats.Conn
}

func (p *natsPublisher) Publish(subject string, data any) error {
	b, err := json.Marshal(Envelope{Subject: subject, OccurredAt: time.Now().UTC(), Data: data})
	if err != nil {
		return err
	}
	return p.nc.Publish(subject, b)
}

func (p *natsPublisher) Close() {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}

type noopPublisher struct{}

func (noopPublisher) Publish(string, any) error { return nil }
func (noopPublisher) Close()                    {}
