package notify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"uniportal/internal/metrics"
)

// Publisher is the hub-facing side of the listener.
type Publisher interface {
	Publish(topic string, payload []byte)
}

// Conn is one LISTEN connection. The wait call must honor its context
// deadline so the loop stays responsive to shutdown.
type Conn interface {
	Listen(ctx context.Context, channels []string) error
	// Wait blocks for the next notification or until ctx expires.
	Wait(ctx context.Context) (channel, payload string, err error)
	Close(ctx context.Context)
}

// Listener is the process's single change-notification bridge. It runs for
// the process lifetime, reconnecting forever on connection errors; upstream
// failures are never surfaced to clients.
type Listener struct {
	connect func(ctx context.Context) (Conn, error)
	pub     Publisher
	poll    time.Duration
	backoff time.Duration
	log     *zap.Logger
}

// NewListener creates a listener. connect opens a fresh LISTEN connection;
// poll bounds each wait so shutdown is noticed; backoff spaces reconnects.
func NewListener(connect func(ctx context.Context) (Conn, error), pub Publisher, poll, backoff time.Duration, log *zap.Logger) *Listener {
	if poll <= 0 {
		poll = 5 * time.Second
	}
	if backoff <= 0 {
		backoff = 5 * time.Second
	}
	return &Listener{connect: connect, pub: pub, poll: poll, backoff: backoff, log: log}
}

var channels = []string{ChannelRating, ChannelTimetable, ChannelTimetableChanges}

// Run blocks until ctx is cancelled. Call it in a dedicated goroutine.
func (l *Listener) Run(ctx context.Context) {
	for ctx.Err() == nil {
		conn, err := l.connect(ctx)
		if err != nil {
			l.retry(ctx, "connect failed", err)
			continue
		}
		if err := conn.Listen(ctx, channels); err != nil {
			conn.Close(ctx)
			l.retry(ctx, "listen failed", err)
			continue
		}
		l.log.Info("listening for change notifications", zap.Strings("channels", channels))

		err = l.receive(ctx, conn)
		conn.Close(ctx)
		if err != nil {
			l.retry(ctx, "notification wait failed", err)
		}
	}
	l.log.Info("change listener stopped")
}

// receive pumps notifications until ctx is cancelled (returns nil) or the
// connection errors (returns the error).
func (l *Listener) receive(ctx context.Context, conn Conn) error {
	for {
		waitCtx, cancel := context.WithTimeout(ctx, l.poll)
		channel, payload, err := conn.Wait(waitCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			return err
		}
		l.dispatch(channel, payload)
	}
}

func (l *Listener) dispatch(channel, payload string) {
	event, err := Decode(channel, payload)
	if err != nil {
		l.log.Warn("dropping undecodable notification",
			zap.String("channel", channel), zap.Error(err))
		return
	}
	for _, topic := range event.Topics() {
		l.pub.Publish(topic, event.Payload())
	}
	metrics.EventsPublished.WithLabelValues(channel).Inc()
	l.log.Debug("notification dispatched",
		zap.String("channel", channel), zap.Strings("topics", event.Topics()))
}

func (l *Listener) retry(ctx context.Context, msg string, err error) {
	if ctx.Err() != nil {
		return
	}
	metrics.ListenerReconnects.Inc()
	l.log.Error(msg+", reconnecting", zap.Duration("backoff", l.backoff), zap.Error(err))
	select {
	case <-time.After(l.backoff):
	case <-ctx.Done():
	}
}
