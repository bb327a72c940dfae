package syncproto

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/grandcat/zeroconf"
)

// ServiceType is the mDNS service units register under.
const ServiceType = "_glowsync._udp"

// NewInstanceID returns a fresh unit identifier.
func NewInstanceID() string {
	return uuid.NewString()
}

// Advertisement is a registered mDNS service.
type Advertisement struct {
	server *zeroconf.Server
	id     string
}

// Advertise registers this unit on the local network so peers can see it.
// Sync does not depend on it; callers log the error and carry on.
func Advertise(id string, port int, logger *slog.Logger) (*Advertisement, error) {
	if logger == nil {
		logger = slog.Default()
	}
	server, err := zeroconf.Register(
		fmt.Sprintf("glowsync-%s", id),
		ServiceType,
		"local.",
		port,
		[]string{"id=" + id, fmt.Sprintf("chunk=%d", ChunkLEDs)},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("sync: mdns register: %w", err)
	}
	logger.Info("sync: mdns service registered", "id", id, "port", port)
	return &Advertisement{server: server, id: id}, nil
}

// ID is the advertised unit id.
func (a *Advertisement) ID() string { return a.id }

// Shutdown withdraws the service.
func (a *Advertisement) Shutdown() {
	a.server.Shutdown()
}

// Peer is another unit seen on the network.
type Peer struct {
	Instance string
	Addr     string
	Port     int
}

// Browse reports peers until ctx is done. found runs on the resolver's
// goroutine.
func Browse(ctx context.Context, found func(Peer), logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("sync: mdns resolver: %w", err)
	}
	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		for e := range entries {
			p := Peer{Instance: e.Instance, Port: e.Port}
			if len(e.AddrIPv4) > 0 {
				p.Addr = e.AddrIPv4[0].String()
			}
			logger.Debug("sync: peer discovered", "instance", p.Instance, "addr", p.Addr, "port", p.Port)
			if found != nil {
				found(p)
			}
		}
	}()
	if err := resolver.Browse(ctx, ServiceType, "local.", entries); err != nil {
		return fmt.Errorf("sync: mdns browse: %w", err)
	}
	<-ctx.Done()
	return nil
}
