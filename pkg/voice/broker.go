package voice

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DefaultConnectTimeout bounds how long Acquire waits for a connection to become ready
const DefaultConnectTimeout = 30 * time.Second

// Broker acquires or reuses voice connections
type Broker struct {
	gateway Gateway
	timeout time.Duration
	logger  *zap.Logger
}

// NewBroker creates a new connection broker
func NewBroker(gateway Gateway, timeout time.Duration, logger *zap.Logger) *Broker {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	return &Broker{
		gateway: gateway,
		timeout: timeout,
		logger:  logger.Named("broker"),
	}
}

// Acquire returns a ready connection for the channel's guild. An existing
// live connection is reused; otherwise a new one is established and awaited.
// A connection that fails to become ready is destroyed before returning.
func (b *Broker) Acquire(ctx context.Context, ref ChannelRef) (Connection, error) {
	log := b.logger.With(zap.String("guildID", ref.GuildID), zap.String("channelID", ref.ChannelID))

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if conn, ok := b.gateway.Existing(ref.GuildID); ok {
		if err := conn.WaitReady(ctx); err != nil {
			return nil, b.classify(err, "wait for existing voice connection")
		}

		log.Debug("reusing voice connection")
		return conn, nil
	}

	log.Info("joining voice channel", zap.String("channel", ref.Name))

	conn, err := b.gateway.Join(ctx, ref)
	if err != nil {
		return nil, b.classify(err, "join voice channel")
	}

	if err := conn.WaitReady(ctx); err != nil {
		if destroyErr := conn.Destroy(); destroyErr != nil {
			log.Warn("failed to destroy half-open voice connection", zap.Error(destroyErr))
		}

		return nil, b.classify(err, "wait for voice connection")
	}

	log.Info("voice connection ready")
	return conn, nil
}

func (b *Broker) classify(err error, msg string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrapf(ErrConnectTimeout, "%s after %s", msg, b.timeout)
	}

	return errors.Wrap(err, msg)
}
