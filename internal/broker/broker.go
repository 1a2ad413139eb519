// Package broker carries room events between server processes. Every
// process publishes the events it causes and subscribes to all regions it
// serves, so a client sees the same feed whichever process it is connected to.
package broker

import "context"

// Handler receives one raw event for a region
type Handler func(region string, payload []byte)

// Broker is a region-partitioned publish/subscribe channel with at-most-once
// delivery.
type Broker interface {
	Publish(ctx context.Context, region string, payload []byte) error
	// Subscribe delivers events for regions to handle until ctx is done.
	Subscribe(ctx context.Context, regions []string, handle Handler) error
	Close() error
}
