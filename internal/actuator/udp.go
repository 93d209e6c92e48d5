package actuator

import (
	"context"
	"encoding/json"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/yannnico/rc-car-project/internal/codec"
)

// DefaultWriteTimeout bounds a single datagram write, and the dial that
// precedes it.
const DefaultWriteTimeout = 100 * time.Millisecond

// UDPConfig addresses the actuator endpoint.
type UDPConfig struct {
	Host         string
	Port         int
	WriteTimeout time.Duration
}

// UDPLink sends each frame as one JSON datagram over a connected UDP socket.
// A failed socket is dropped and re-dialed on the next Send.
type UDPLink struct {
	config UDPConfig
	addr   string

	dial func(ctx context.Context, network, address string) (net.Conn, error)

	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

// NewUDPLink creates a link to host:port. The initial dial failing is not
// fatal; the actuator may come up after the relay.
func NewUDPLink(ctx context.Context, config UDPConfig) (*UDPLink, error) {
	if config.Host == "" {
		return nil, errors.New("actuator host is required")
	}
	if config.Port <= 0 || config.Port > 65535 {
		return nil, errors.Errorf("actuator port %d out of range", config.Port)
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}

	link := &UDPLink{
		config: config,
		addr:   net.JoinHostPort(config.Host, strconv.Itoa(config.Port)),
	}
	var dialer net.Dialer
	link.dial = dialer.DialContext

	link.mu.Lock()
	err := link.connectLocked(ctx)
	link.mu.Unlock()
	if err != nil {
		log.WithField("addr", link.addr).WithField("err", err).Warn("actuator link not connected, will retry on send")
	}
	return link, nil
}

// Addr returns host:port of the actuator.
func (l *UDPLink) Addr() string {
	return l.addr
}

// Send writes frame as a single datagram.
func (l *UDPLink) Send(ctx context.Context, frame codec.Frame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return Normalize("encode", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return Normalize("send", net.ErrClosed)
	}
	if l.conn == nil {
		if err := l.connectLocked(ctx); err != nil {
			return err
		}
	}

	deadline := time.Now().Add(l.config.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := l.conn.SetWriteDeadline(deadline); err != nil {
		l.dropLocked()
		return Normalize("set deadline", err)
	}

	if _, err := l.conn.Write(payload); err != nil {
		// ICMP errors surface on the next write of a connected socket; redial
		// so a restarted actuator is picked up.
		l.dropLocked()
		return Normalize("write", err)
	}

	log.WithField("addr", l.addr).Debugf("UDP -> %s", payload)
	return nil
}

// Close closes the socket. Subsequent sends fail with ErrUnavailable.
func (l *UDPLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	if l.conn == nil {
		return nil
	}
	err := l.conn.Close()
	l.conn = nil
	return errors.Wrap(err, "unable to close actuator socket")
}

// connectLocked dials the actuator. A slow name lookup must not hold the
// mutex past one write timeout, or the watchdog stalls behind it.
func (l *UDPLink) connectLocked(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, l.config.WriteTimeout)
	defer cancel()

	conn, err := l.dial(dialCtx, "udp", l.addr)
	if err != nil {
		return Normalize("dial", err)
	}
	l.conn = conn
	return nil
}

func (l *UDPLink) dropLocked() {
	if l.conn != nil {
		_ = l.conn.Close()
		l.conn = nil
	}
}
