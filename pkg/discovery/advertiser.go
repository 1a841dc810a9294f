package discovery

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// Advertiser provides mDNS service advertising capabilities.
type Advertiser interface {
	// Advertise starts advertising a data server. A previous
	// advertisement is replaced.
	Advertise(ctx context.Context, info *ServerInfo) error

	// Update replaces the TXT records of the running advertisement.
	Update(info *ServerInfo) error

	// Stop stops advertising.
	Stop() error
}

// AdvertiserConfig configures advertiser behavior.
type AdvertiserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// TTL is the DNS record TTL.
	TTL time.Duration
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{
		TTL: 120 * time.Second,
	}
}

// Announcer keeps a server advertisement in sync with the set of devices
// the server can reach.
type Announcer struct {
	mu sync.Mutex

	advertiser Advertiser
	info       ServerInfo
	active     bool
	logger     *slog.Logger
}

// NewAnnouncer creates an announcer for the given server.
func NewAnnouncer(advertiser Advertiser, info ServerInfo, logger *slog.Logger) *Announcer {
	info.Serials = normalizeSerials(info.Serials)
	return &Announcer{advertiser: advertiser, info: info, logger: logger}
}

// Start begins advertising.
func (a *Announcer) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	info := a.info
	if err := a.advertiser.Advertise(ctx, &info); err != nil {
		return err
	}
	a.active = true
	if a.logger != nil {
		a.logger.Info("advertising data server", "instance", info.InstanceName, "port", info.Port, "devices", len(info.Serials))
	}
	return nil
}

// Stop ends the advertisement.
func (a *Announcer) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.active {
		return nil
	}
	a.active = false
	return a.advertiser.Stop()
}

// Active reports whether the announcer is advertising.
func (a *Announcer) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Serials returns the currently announced serials.
func (a *Announcer) Serials() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.info.Serials)
}

// AddDevice adds a serial to the announcement.
func (a *Announcer) AddDevice(serial string) error {
	return a.change(func(serials []string) []string {
		return append(serials, serial)
	})
}

// RemoveDevice removes a serial from the announcement.
func (a *Announcer) RemoveDevice(serial string) error {
	serial = strings.ToLower(serial)
	return a.change(func(serials []string) []string {
		return slices.DeleteFunc(serials, func(s string) bool { return s == serial })
	})
}

func (a *Announcer) change(fn func([]string) []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	next := normalizeSerials(fn(slices.Clone(a.info.Serials)))
	if slices.Equal(next, a.info.Serials) {
		return nil
	}
	a.info.Serials = next
	if !a.active {
		return nil
	}
	info := a.info
	return a.advertiser.Update(&info)
}

func normalizeSerials(serials []string) []string {
	out := make([]string, 0, len(serials))
	for _, s := range serials {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
