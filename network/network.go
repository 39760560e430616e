// Package network provides the virtual networking capability handed to
// guests. A runtime always carries some Networking provider; when nothing is
// granted it is Unsupported, whose operations fail with a
// capability-unavailable error instead of being absent.
package network

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/caffeineduck/wasirt/capability"
)

// Networking is the socket and resolution surface a guest may use.
type Networking interface {
	ResolveHost(ctx context.Context, host string) ([]netip.Addr, error)
	DialTCP(ctx context.Context, addr string) (net.Conn, error)
	ListenTCP(ctx context.Context, addr string) (net.Listener, error)
	BindUDP(ctx context.Context, addr string) (net.PacketConn, error)
}

// Unsupported is the Networking provider of a runtime without network access.
type Unsupported struct{}

func (Unsupported) ResolveHost(ctx context.Context, host string) ([]netip.Addr, error) {
	return nil, capability.Unavailable(capability.Networking, "resolve")
}

func (Unsupported) DialTCP(ctx context.Context, addr string) (net.Conn, error) {
	return nil, capability.Unavailable(capability.Networking, "dial tcp")
}

func (Unsupported) ListenTCP(ctx context.Context, addr string) (net.Listener, error) {
	return nil, capability.Unavailable(capability.Networking, "listen tcp")
}

func (Unsupported) BindUDP(ctx context.Context, addr string) (net.PacketConn, error) {
	return nil, capability.Unavailable(capability.Networking, "bind udp")
}

// DefaultDialTimeout bounds DialTCP when the context has no deadline.
const DefaultDialTimeout = 5 * time.Second

// Local uses the host network stack.
type Local struct {
	resolver *net.Resolver
	dialer   net.Dialer
	listen   net.ListenConfig
}

// LocalOption configures a Local provider.
type LocalOption func(*Local)

// WithDialTimeout sets the TCP connect timeout.
func WithDialTimeout(d time.Duration) LocalOption {
	return func(l *Local) {
		l.dialer.Timeout = d
	}
}

// WithResolver replaces the resolver used by ResolveHost.
func WithResolver(r *net.Resolver) LocalOption {
	return func(l *Local) {
		l.resolver = r
	}
}

// NewLocal returns a provider backed by the host network stack.
func NewLocal(opts ...LocalOption) *Local {
	l := &Local{
		resolver: net.DefaultResolver,
		dialer:   net.Dialer{Timeout: DefaultDialTimeout},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Local) ResolveHost(ctx context.Context, host string) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{addr}, nil
	}
	addrs, err := l.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}
	return addrs, nil
}

func (l *Local) DialTCP(ctx context.Context, addr string) (net.Conn, error) {
	conn, err := l.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn, nil
}

func (l *Local) ListenTCP(ctx context.Context, addr string) (net.Listener, error) {
	ln, err := l.listen.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return ln, nil
}

func (l *Local) BindUDP(ctx context.Context, addr string) (net.PacketConn, error) {
	pc, err := l.listen.ListenPacket(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}
	return pc, nil
}
