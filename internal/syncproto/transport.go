package syncproto

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"syscall"
	"time"
)

// DefaultPort is the UDP port standing in for the shared radio channel.
const DefaultPort = 4455

// Packet is one received datagram.
type Packet struct {
	Data []byte
	From net.Addr
	At   time.Time
}

// Transport moves raw fragments between units. Send must not block for
// longer than the fragment pacing delay.
type Transport interface {
	Send(pkt []byte) error
	Packets() <-chan Packet
	Close() error
}

// UDPTransport broadcasts fragments on a UDP port and feeds every datagram
// it receives into a buffered channel. Packets are dropped when the channel
// is full.
type UDPTransport struct {
	conn    *net.UDPConn
	target  *net.UDPAddr
	packets chan Packet
	logger  *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// ListenUDP binds listen (host:port) and sends to target, usually the
// subnet broadcast address on the same port.
func ListenUDP(listen, target string, logger *slog.Logger) (*UDPTransport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	laddr, err := net.ResolveUDPAddr("udp4", listen)
	if err != nil {
		return nil, fmt.Errorf("sync: resolve %q: %w", listen, err)
	}
	taddr, err := net.ResolveUDPAddr("udp4", target)
	if err != nil {
		return nil, fmt.Errorf("sync: resolve %q: %w", target, err)
	}
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("sync: listen %q: %w", listen, err)
	}

	if raw, err := conn.SyscallConn(); err == nil {
		raw.Control(func(fd uintptr) {
			if err := syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1); err != nil {
				logger.Warn("sync: enable broadcast failed", "err", err)
			}
		})
	}

	t := &UDPTransport{
		conn:    conn,
		target:  taddr,
		packets: make(chan Packet, 64),
		logger:  logger,
		done:    make(chan struct{}),
	}
	go t.readLoop()
	logger.Info("sync: udp transport up", "listen", conn.LocalAddr(), "target", taddr)
	return t, nil
}

// LocalAddr is the bound address.
func (t *UDPTransport) LocalAddr() net.Addr { return t.conn.LocalAddr() }

func (t *UDPTransport) Send(pkt []byte) error {
	if _, err := t.conn.WriteToUDP(pkt, t.target); err != nil {
		return fmt.Errorf("sync: send: %w", err)
	}
	return nil
}

func (t *UDPTransport) Packets() <-chan Packet { return t.packets }

// Close stops the read loop and closes the packet channel.
func (t *UDPTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		err = t.conn.Close()
		<-t.done
	})
	return err
}

func (t *UDPTransport) readLoop() {
	defer close(t.done)
	defer close(t.packets)
	buf := make([]byte, 2048)
	for {
		n, from, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			t.logger.Debug("sync: read error", "err", err)
			continue
		}
		p := Packet{Data: append([]byte(nil), buf[:n]...), From: from, At: time.Now()}
		select {
		case t.packets <- p:
		default:
			t.logger.Debug("sync: packet dropped, queue full", "from", from)
		}
	}
}
