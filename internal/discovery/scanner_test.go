package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openbio/openbio/internal/domain"
	"github.com/openbio/openbio/pkg/config"
)

// fakeBrowser mimics zeroconf: sends block without watching ctx, and the
// channel is closed only when the session is torn down after ctx ends.
type fakeBrowser struct {
	entries   []*zeroconf.ServiceEntry
	gap       time.Duration
	err       error
	gotCtx    context.Context
	gotServ   string
	gotDomain string
	torndown  atomic.Bool
}

func (f *fakeBrowser) Browse(ctx context.Context, service, domain string, out chan<- *zeroconf.ServiceEntry) error {
	f.gotCtx, f.gotServ, f.gotDomain = ctx, service, domain
	go func() {
		if f.err == nil {
			for _, e := range f.entries {
				time.Sleep(f.gap)
				out <- e
			}
		}
		<-ctx.Done()
		f.torndown.Store(true)
		close(out)
	}()
	return f.err
}

func entry(instance, ip string, port int) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry(instance, "_openbio._tcp", "local.")
	e.Port = port
	if ip != "" {
		e.AddrIPv4 = []net.IP{net.ParseIP(ip)}
	}
	return e
}

func newTestScanner(b Browser, timeout time.Duration) *Scanner {
	cfg := config.DefaultConfig().Discovery
	cfg.ScanTimeout = timeout
	s := NewScanner(&cfg, zap.NewNop())
	s.newBrowser = func() (Browser, error) { return b, nil }
	return s
}

func TestScan_SortsAndDeduplicates(t *testing.T) {
	b := &fakeBrowser{entries: []*zeroconf.ServiceEntry{
		entry("Zeta", "192.168.1.20", 3000),
		entry("Alpha", "192.168.1.10", 3000),
		entry("Alpha Copy", "192.168.1.10", 3000),
	}}

	peers, err := newTestScanner(b, 100*time.Millisecond).Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []domain.DiscoveredPeer{
		{Name: "Alpha", Address: "192.168.1.10:3000"},
		{Name: "Zeta", Address: "192.168.1.20:3000"},
	}, peers)
	assert.Equal(t, "_openbio._tcp", b.gotServ)
	assert.Equal(t, "local.", b.gotDomain)
}

func TestScan_SameAddressTwice(t *testing.T) {
	b := &fakeBrowser{entries: []*zeroconf.ServiceEntry{
		entry("Lab", "10.0.0.5", 3001),
		entry("Lab", "10.0.0.5", 3001),
	}}

	peers, err := newTestScanner(b, 100*time.Millisecond).Scan(context.Background())
	require.NoError(t, err)
	assert.Len(t, peers, 1)
}

func TestScan_SkipsEntriesWithoutIPv4(t *testing.T) {
	v6only := entry("V6", "", 3000)
	v6only.AddrIPv6 = []net.IP{net.ParseIP("fe80::1")}
	b := &fakeBrowser{entries: []*zeroconf.ServiceEntry{v6only, entry("V4", "10.0.0.7", 3000)}}

	peers, err := newTestScanner(b, 100*time.Millisecond).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.DiscoveredPeer{{Name: "V4", Address: "10.0.0.7:3000"}}, peers)
}

func TestScan_EmptyIsNotAnError(t *testing.T) {
	b := &fakeBrowser{}

	start := time.Now()
	peers, err := newTestScanner(b, 50*time.Millisecond).Scan(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, peers)
	assert.Empty(t, peers)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	// the browse context is cancelled once the scan returns
	assert.Error(t, b.gotCtx.Err())
}

func TestScan_StopsWithCallerContext(t *testing.T) {
	b := &fakeBrowser{}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := newTestScanner(b, 5*time.Second).Scan(ctx)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestScan_ReleasesSessionWithEntriesPending(t *testing.T) {
	var entries []*zeroconf.ServiceEntry
	for i := 0; i < 40; i++ {
		entries = append(entries, entry(fmt.Sprintf("Lab %02d", i), fmt.Sprintf("10.0.1.%d", i+1), 3000))
	}
	// more entries arrive after the deadline than the channel can buffer
	b := &fakeBrowser{entries: entries, gap: 5 * time.Millisecond}

	peers, err := newTestScanner(b, 50*time.Millisecond).Scan(context.Background())
	require.NoError(t, err)
	assert.True(t, b.torndown.Load(), "browse session still open after Scan returned")
	assert.Less(t, len(peers), len(entries))
}

func TestScan_BrowseError(t *testing.T) {
	b := &fakeBrowser{err: errors.New("no multicast interface")}
	_, err := newTestScanner(b, time.Second).Scan(context.Background())
	assert.ErrorContains(t, err, "no multicast interface")
	assert.True(t, b.torndown.Load())
}

func TestScan_ResolverError(t *testing.T) {
	s := newTestScanner(nil, time.Second)
	s.newBrowser = func() (Browser, error) { return nil, errors.New("socket denied") }

	_, err := s.Scan(context.Background())
	assert.ErrorContains(t, err, "socket denied")
}

func TestUnescapeInstance(t *testing.T) {
	assert.Equal(t, "My Lab", unescapeInstance(`My\ Lab`))
	assert.Equal(t, "Lab.One", unescapeInstance(`Lab\.One`))
	assert.Equal(t, "A B", unescapeInstance(`A\032B`))
	assert.Equal(t, "plain", unescapeInstance("plain"))
	assert.Equal(t, `trailing\`, unescapeInstance(`trailing\`))
}

func TestDiscoveredPeerURL(t *testing.T) {
	p := domain.DiscoveredPeer{Name: "Alpha", Address: "192.168.1.10:3000"}
	assert.Equal(t, "http://192.168.1.10:3000", p.URL())
}
