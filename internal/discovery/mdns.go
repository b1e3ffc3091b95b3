// Package discovery advertises this agent on the local network over mDNS so
// a controller app can find it without the operator typing in an IP.
package discovery

import (
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/pion/mdns/v2"
	"golang.org/x/net/ipv4"

	"github.com/Bazza1982/lily-remote/internal/logging"
)

var log = logging.L("discovery")

// ServiceType is the mDNS service type name of this agent. It appears only in
// the startup log; no DNS-SD record for it is published.
const ServiceType = "_lily-remote._tcp.local"

// Info is the set of facts advertised about this agent.
type Info struct {
	InstanceName string // e.g. the machine hostname
	Port         int
	PairingOpen  bool // whether the agent currently accepts new pairing requests
}

// Advertiser answers local mDNS queries for this agent's hostname so a LAN
// controller can resolve it without a manual IP entry. pion/mdns implements
// the simple A-record responder used by ICE mDNS candidates, not full
// DNS-SD PTR/SRV/TXT records, so service metadata (port, pairing state) is
// not published on the network; it is held in Info and returned by Info().
type Advertiser struct {
	mu     sync.Mutex
	conn   *mdns.Conn
	info   Info
	closed bool
}

// hostLocalName returns the ".local" name this agent responds to queries for.
func hostLocalName(instanceName string) string {
	name := strings.ToLower(strings.TrimSpace(instanceName))
	name = strings.ReplaceAll(name, " ", "-")
	if name == "" {
		name = "lily-remote-agent"
	}
	return name + ".local"
}

// Start begins responding to mDNS A-record queries for this agent's local
// name. Call Close to stop advertising.
func Start(info Info) (*Advertiser, error) {
	addr, err := net.ResolveUDPAddr("udp4", mdns.DefaultAddressIPv4)
	if err != nil {
		return nil, fmt.Errorf("resolve mdns multicast address: %w", err)
	}

	l, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("listen mdns udp: %w", err)
	}

	localName := hostLocalName(info.InstanceName)
	conn, err := mdns.Server(ipv4.NewPacketConn(l), nil, &mdns.Config{
		LocalNames: []string{localName},
	})
	if err != nil {
		l.Close()
		return nil, fmt.Errorf("start mdns responder: %w", err)
	}

	log.Info("mdns advertiser started", "name", localName, "port", info.Port, "serviceType", ServiceType)
	return &Advertiser{conn: conn, info: info}, nil
}

// Info returns the currently advertised facts about this agent.
func (a *Advertiser) Info() Info {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.info
}

// SetPairingOpen updates whether the agent is currently accepting pairing
// requests. The value is returned by Info(); it is not published over mDNS.
func (a *Advertiser) SetPairingOpen(open bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.info.PairingOpen = open
}

// Close stops responding to mDNS queries.
func (a *Advertiser) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	log.Info("mdns advertiser stopped")
	return a.conn.Close()
}
