package broker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const natsSubjectPrefix = "pairrooms.events."

// NATSSubject is the subject of a region
func NATSSubject(region string) string {
	return natsSubjectPrefix + region
}

// NATS fans events out over core NATS subjects. Core NATS is fire and
// forget, which is all the snapshot protocol needs.
type NATS struct {
	nc *nats.Conn
}

// ConnectNATS dials a NATS server
func ConnectNATS(url string) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name("pairrooms"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Str("module", "broker").Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("module", "broker").Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATS{nc: nc}, nil
}

// Publish sends payload on the subject of region
func (n *NATS) Publish(ctx context.Context, region string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := n.nc.Publish(NATSSubject(region), payload); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// Subscribe delivers messages for regions to handle until ctx is done
func (n *NATS) Subscribe(ctx context.Context, regions []string, handle Handler) error {
	subs := make([]*nats.Subscription, 0, len(regions))
	defer func() {
		for _, s := range subs {
			s.Unsubscribe()
		}
	}()

	for _, region := range regions {
		sub, err := n.nc.Subscribe(NATSSubject(region), func(m *nats.Msg) {
			handle(strings.TrimPrefix(m.Subject, natsSubjectPrefix), m.Data)
		})
		if err != nil {
			return fmt.Errorf("nats subscribe %s: %w", region, err)
		}
		subs = append(subs, sub)
	}
	if err := n.nc.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	log.Info().Str("module", "broker").Strs("regions", regions).Msg("nats subscriber started")

	<-ctx.Done()
	return nil
}

// Close drops the NATS connection
func (n *NATS) Close() error {
	n.nc.Close()
	return nil
}
