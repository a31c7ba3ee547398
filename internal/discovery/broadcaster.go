// Package discovery advertises a hub on the local network and finds hubs
// advertised by other instances, using mDNS / DNS-SD.
package discovery

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/openbio/openbio/pkg/config"
)

// ErrLabNameRequired is returned when advertising without a lab name
var ErrLabNameRequired = errors.New("lab name is required to advertise")

// Registration is a live mDNS registration
type Registration interface {
	Shutdown()
}

// Registrar publishes a service instance on the local network
type Registrar interface {
	Register(instance, service, domain string, port int, host string, ips, text []string) (Registration, error)
}

type zeroconfRegistrar struct{}

func (zeroconfRegistrar) Register(instance, service, domain string, port int, host string, ips, text []string) (Registration, error) {
	return zeroconf.RegisterProxy(instance, service, domain, port, host, ips, text, nil)
}

// Broadcaster advertises this instance as a hub. At most one advertisement
// is live per Broadcaster.
type Broadcaster struct {
	service   string
	domain    string
	registrar Registrar
	localIPs  func() []string
	logger    *zap.Logger

	mu      sync.Mutex
	current *Advertisement
}

// NewBroadcaster creates a broadcaster backed by zeroconf
func NewBroadcaster(cfg *config.DiscoveryConfig, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		service:   cfg.Service,
		domain:    cfg.Domain,
		registrar: zeroconfRegistrar{},
		localIPs:  localIPv4s,
		logger:    logger.Named("broadcaster"),
	}
}

// Advertisement is a live hub announcement. Stop withdraws it.
type Advertisement struct {
	Instance string
	Host     string
	Port     uint16

	reg      Registration
	stopOnce sync.Once
	onStop   func(*Advertisement)
}

// Stop deregisters the advertisement. It is safe to call more than once.
func (a *Advertisement) Stop() {
	a.stopOnce.Do(func() {
		if a.reg != nil {
			a.reg.Shutdown()
		}
		if a.onStop != nil {
			a.onStop(a)
		}
	})
}

// HostName returns the mDNS host name advertised for labName
func HostName(labName string) string {
	return strings.ReplaceAll(strings.ToLower(labName), " ", "-") + ".local."
}

// Start advertises labName on port, replacing any previous advertisement
func (b *Broadcaster) Start(labName string, port uint16) (*Advertisement, error) {
	if strings.TrimSpace(labName) == "" {
		return nil, ErrLabNameRequired
	}

	b.mu.Lock()
	prev := b.current
	b.current = nil
	b.mu.Unlock()
	if prev != nil {
		prev.Stop()
	}

	host := HostName(labName)
	ips := b.localIPs()

	// an empty TXT payload is a single empty string
	reg, err := b.registrar.Register(labName, b.service, b.domain, int(port), host, ips, []string{""})
	if err != nil {
		return nil, fmt.Errorf("register mDNS service: %w", err)
	}

	adv := &Advertisement{
		Instance: labName,
		Host:     host,
		Port:     port,
		reg:      reg,
		onStop:   b.forget,
	}

	b.mu.Lock()
	b.current = adv
	b.mu.Unlock()

	b.logger.Info("advertising hub",
		zap.String("instance", labName),
		zap.String("host", host),
		zap.Uint16("port", port),
		zap.Strings("ips", ips))
	return adv, nil
}

// Current returns the live advertisement, or nil
func (b *Broadcaster) Current() *Advertisement {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Stop withdraws the live advertisement, if any
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	adv := b.current
	b.mu.Unlock()
	if adv != nil {
		adv.Stop()
		b.logger.Info("hub advertisement withdrawn", zap.String("instance", adv.Instance))
	}
}

func (b *Broadcaster) forget(adv *Advertisement) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == adv {
		b.current = nil
	}
}

// localIPv4s lists the non-loopback IPv4 addresses of this machine,
// falling back to loopback when there are none.
func localIPv4s() []string {
	var ips []string
	addrs, err := net.InterfaceAddrs()
	if err == nil {
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok || ipnet.IP.IsLoopback() {
				continue
			}
			if v4 := ipnet.IP.To4(); v4 != nil {
				ips = append(ips, v4.String())
			}
		}
	}
	if len(ips) == 0 {
		ips = []string{"127.0.0.1"}
	}
	return ips
}
