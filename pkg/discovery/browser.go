package discovery

import (
	"context"
	"strings"
	"time"
)

// Browser provides mDNS service browsing capabilities.
type Browser interface {
	// Browse searches for data servers. The channel is closed when the
	// context is cancelled.
	Browse(ctx context.Context) (<-chan *ServerService, error)

	// FindBySerial returns the first server that reaches the device.
	FindBySerial(ctx context.Context, serial string) (*ServerService, error)

	// Stop stops all active browsing operations.
	Stop()
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// BrowseTimeout bounds FindBySerial when the context has no deadline.
	BrowseTimeout time.Duration

	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		BrowseTimeout: BrowseTimeout,
	}
}

// FilterFunc is a function that filters browse results.
type FilterFunc func(*ServerService) bool

// FilterBySerial matches servers that reach the given device.
func FilterBySerial(serial string) FilterFunc {
	return func(svc *ServerService) bool {
		return svc.HasDevice(serial)
	}
}

// FilterByVersion matches servers whose version starts with the given
// major.minor prefix.
func FilterByVersion(prefix string) FilterFunc {
	return func(svc *ServerService) bool {
		return svc.Version == prefix || strings.HasPrefix(svc.Version, prefix+".")
	}
}

// FilterBrowseResults filters a channel of services.
func FilterBrowseResults(in <-chan *ServerService, filter FilterFunc) <-chan *ServerService {
	out := make(chan *ServerService)
	go func() {
		defer close(out)
		for svc := range in {
			if filter(svc) {
				out <- svc
			}
		}
	}()
	return out
}

// Collect drains a browse channel until it closes or ctx is done.
func Collect(ctx context.Context, in <-chan *ServerService) []*ServerService {
	var found []*ServerService
	for {
		select {
		case svc, ok := <-in:
			if !ok {
				return found
			}
			found = append(found, svc)
		case <-ctx.Done():
			return found
		}
	}
}
