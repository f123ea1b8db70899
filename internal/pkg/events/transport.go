package events

import (
	"fmt"
	"time"

	"github.com/ManuelReschke/MetaTask/internal/pkg/cache"
	"github.com/ManuelReschke/MetaTask/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
	"github.com/nats-io/nats.go"
)

const (
	TransportNone  = "none"
	TransportRedis = "redis"
	TransportNATS  = "nats"
)

// TransportConfig selects where booking notifications are mirrored to.
type TransportConfig struct {
	Kind           string
	Channel        string
	NATSURL        string
	ReconnectWait  time.Duration
	MaxReconnects  int
	ConnectionName string
}

// TransportConfigFromEnv reads EVENT_TRANSPORT, EVENT_CHANNEL and NATS_URL.
func TransportConfigFromEnv() TransportConfig {
	return TransportConfig{
		Kind:           env.GetEnv("EVENT_TRANSPORT", TransportNone),
		Channel:        env.GetEnv("EVENT_CHANNEL", "metatask.bookings"),
		NATSURL:        env.GetEnv("NATS_URL", nats.DefaultURL),
		ReconnectWait:  time.Duration(env.GetEnvInt("NATS_RECONNECT_WAIT_SECONDS", 2)) * time.Second,
		MaxReconnects:  env.GetEnvInt("NATS_MAX_RECONNECTS", 60),
		ConnectionName: "metatask",
	}
}

// InstallTransport subscribes a forwarder for every booking notification.
// The returned close func releases the connection it opened, if any.
func InstallTransport(bus *Bus, cfg TransportConfig) (func(), error) {
	switch cfg.Kind {
	case "", TransportNone:
		return func() {}, nil
	case TransportRedis:
		bus.SubscribeAllBookings(RedisForwarder(cache.GetClient(), cfg.Channel))
		log.Infof("[Events] Forwarding booking notifications to redis channel %s", cfg.Channel)
		return func() {}, nil
	case TransportNATS:
		nc, err := nats.Connect(cfg.NATSURL,
			nats.Name(cfg.ConnectionName),
			nats.ReconnectWait(cfg.ReconnectWait),
			nats.MaxReconnects(cfg.MaxReconnects),
			nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
				log.Warnf("[Events] NATS disconnected: %v", err)
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				log.Infof("[Events] NATS reconnected to %s", nc.ConnectedUrl())
			}),
			nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
				log.Errorf("[Events] NATS error: %v", err)
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("connect nats %s: %w", cfg.NATSURL, err)
		}
		bus.SubscribeAllBookings(NATSForwarder(nc, cfg.Channel))
		log.Infof("[Events] Forwarding booking notifications to NATS subjects %s.*", cfg.Channel)
		return func() {
			if err := nc.Drain(); err != nil {
				log.Warnf("[Events] NATS drain: %v", err)
			}
		}, nil
	default:
		return nil, fmt.Errorf("unknown event transport %q", cfg.Kind)
	}
}
