package app

import (
	"context"
	"time"

	"github.com/okian/otxsync/internal/adapters/otx"
)

// otxFeed adapts the concrete otx.Client to the Feed port.
type otxFeed struct {
	client *otx.Client
}

// NewOTXFeed wraps an OTX client as a Feed.
func NewOTXFeed(c *otx.Client) Feed {
	return &otxFeed{client: c}
}

func (f *otxFeed) Pulses(ctx context.Context, modifiedSince time.Time) PulseIterator {
	return f.client.Pulses(ctx, modifiedSince)
}
