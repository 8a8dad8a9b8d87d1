package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

const subjectPrefix = "ralli.changes"

// Subject is the NATS subject a change to table is published on.
func Subject(table string) string {
	if table == "" {
		return subjectPrefix + ".>"
	}
	return subjectPrefix + "." + table
}

// NATSBus fans changes out across server instances.
type NATSBus struct {
	nc     *nats.Conn
	owned  bool
	logger *slog.Logger
}

func NewNATSBus(url string, logger *slog.Logger) (*NATSBus, error) {
	nc, err := nats.Connect(url,
		nats.Name("ralli"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", slog.Any("error", err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSBus{nc: nc, owned: true, logger: logger}, nil
}

// NewNATSBusFromConn wraps an existing connection; Close leaves it open.
func NewNATSBusFromConn(nc *nats.Conn, logger *slog.Logger) *NATSBus {
	return &NATSBus{nc: nc, logger: logger}
}

func (b *NATSBus) Publish(ctx context.Context, c Change) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	return b.nc.Publish(Subject(c.Table), data)
}

func (b *NATSBus) Subscribe(channel string, f Filter, h Handler) (Subscription, error) {
	sub, err := b.nc.Subscribe(Subject(f.Table), func(msg *nats.Msg) {
		var c Change
		if err := json.Unmarshal(msg.Data, &c); err != nil {
			b.logger.Warn("dropping malformed change", slog.String("subject", msg.Subject), slog.Any("error", err))
			return
		}
		if f.Matches(c) {
			h(c)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	return &natsSubscription{sub: sub}, nil
}

func (b *NATSBus) Close() error {
	if !b.owned {
		return nil
	}
	return b.nc.Drain()
}

type natsSubscription struct {
	sub  *nats.Subscription
	once sync.Once
	err  error
}

func (s *natsSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.err = s.sub.Unsubscribe()
	})
	return s.err
}
