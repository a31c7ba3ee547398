package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/openbio/openbio/internal/domain"
	"github.com/openbio/openbio/internal/metrics"
	"github.com/openbio/openbio/pkg/config"
)

// Browser streams service entries for a service type until ctx ends. It
// closes entries once its session is torn down, including after a failed
// Browse.
type Browser interface {
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// BrowserFactory creates a fresh Browser for one scan
type BrowserFactory func() (Browser, error)

func newZeroconfBrowser() (Browser, error) {
	return zeroconf.NewResolver()
}

// Scanner finds hubs advertised on the local network
type Scanner struct {
	service    string
	domain     string
	timeout    time.Duration
	newBrowser BrowserFactory
	logger     *zap.Logger
}

// NewScanner creates a scanner backed by zeroconf
func NewScanner(cfg *config.DiscoveryConfig, logger *zap.Logger) *Scanner {
	return &Scanner{
		service:    cfg.Service,
		domain:     cfg.Domain,
		timeout:    cfg.ScanTimeout,
		newBrowser: newZeroconfBrowser,
		logger:     logger.Named("scanner"),
	}
}

// Scan browses for the scan timeout and returns the hubs found, sorted by
// name with duplicate addresses removed. Finding nothing is not an error.
// The browse session is torn down before Scan returns.
func (s *Scanner) Scan(ctx context.Context) ([]domain.DiscoveredPeer, error) {
	peers, err := s.scan(ctx)
	metrics.RecordScan(len(peers), err)
	return peers, err
}

func (s *Scanner) scan(ctx context.Context) ([]domain.DiscoveredPeer, error) {
	browser, err := s.newBrowser()
	if err != nil {
		return nil, fmt.Errorf("create mDNS resolver: %w", err)
	}

	scanCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 16)
	if err := browser.Browse(scanCtx, s.service, s.domain, entries); err != nil {
		cancel()
		release(entries)
		return nil, fmt.Errorf("browse %s: %w", s.service, err)
	}

	s.logger.Debug("scanning for hubs", zap.Duration("timeout", s.timeout))

	var peers []domain.DiscoveredPeer
collect:
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				break collect
			}
			if peer, ok := peerFromEntry(entry); ok {
				peers = append(peers, peer)
			}
		case <-scanCtx.Done():
			break collect
		}
	}

	// zeroconf blocks on sends it still has queued and only closes entries
	// when it shuts the session down
	cancel()
	release(entries)

	peers = sortAndDedup(peers)
	s.logger.Info("scan complete", zap.Int("peers", len(peers)))
	return peers, nil
}

// release discards entries until the browser closes the channel
func release(entries <-chan *zeroconf.ServiceEntry) {
	for range entries {
	}
}

// peerFromEntry uses the first IPv4 address; entries without one are skipped
func peerFromEntry(entry *zeroconf.ServiceEntry) (domain.DiscoveredPeer, bool) {
	if entry == nil || len(entry.AddrIPv4) == 0 {
		return domain.DiscoveredPeer{}, false
	}
	return domain.DiscoveredPeer{
		Name:    unescapeInstance(entry.Instance),
		Address: net.JoinHostPort(entry.AddrIPv4[0].String(), strconv.Itoa(entry.Port)),
	}, true
}

// sortAndDedup sorts by name (stable) and keeps the first peer per address
func sortAndDedup(peers []domain.DiscoveredPeer) []domain.DiscoveredPeer {
	sort.SliceStable(peers, func(i, j int) bool {
		return peers[i].Name < peers[j].Name
	})

	out := make([]domain.DiscoveredPeer, 0, len(peers))
	seen := make(map[string]struct{}, len(peers))
	for _, p := range peers {
		if _, dup := seen[p.Address]; dup {
			continue
		}
		seen[p.Address] = struct{}{}
		out = append(out, p)
	}
	return out
}

// unescapeInstance removes DNS presentation escapes: "\X" and "\DDD"
func unescapeInstance(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		if i+3 < len(s) && isDigit(s[i+1]) && isDigit(s[i+2]) && isDigit(s[i+3]) {
			if n, err := strconv.Atoi(s[i+1 : i+4]); err == nil && n < 256 {
				b.WriteByte(byte(n))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i+1])
		i++
	}
	return b.String()
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
