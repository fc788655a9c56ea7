package airsim

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	customlog "github.com/open-teleop/airscan/pkg/log"
)

// ConnectOptions bounds the connection retry loop.
type ConnectOptions struct {
	Retries         int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	RPCTimeout      time.Duration
}

// DefaultConnectOptions retries ten times starting at half a second.
func DefaultConnectOptions() ConnectOptions {
	return ConnectOptions{
		Retries:         10,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     8 * time.Second,
		RPCTimeout:      5 * time.Second,
	}
}

// Connect dials the simulator and confirms the connection, retrying with
// exponential backoff until opts.Retries attempts have failed or ctx ends.
func Connect(ctx context.Context, address string, opts ConnectOptions, logger customlog.Logger) (*Client, error) {
	retries := opts.Retries
	if retries < 1 {
		retries = 1
	}

	b := backoff.NewExponentialBackOff()
	if opts.InitialInterval > 0 {
		b.InitialInterval = opts.InitialInterval
	}
	if opts.MaxInterval > 0 {
		b.MaxInterval = opts.MaxInterval
	}
	b.MaxElapsedTime = 0

	var client *Client
	attempt := 0
	operation := func() error {
		attempt++
		c, err := Dial(ctx, address, logger)
		if err != nil {
			logger.Warnf("Connection attempt %d/%d failed, retrying...: %v", attempt, retries, err)
			return err
		}
		c.SetTimeout(opts.RPCTimeout)
		if err := c.ConfirmConnection(ctx); err != nil {
			c.Close()
			logger.Warnf("Connection attempt %d/%d not confirmed, retrying...: %v", attempt, retries, err)
			return err
		}
		client = c
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries-1)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("could not connect to simulator at %s after %d attempts: %w", address, attempt, err)
	}

	logger.Infof("Connected to simulator at %s", address)
	return client, nil
}
