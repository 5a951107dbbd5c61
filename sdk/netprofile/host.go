package netprofile

import (
	"context"
	"net"
	"sort"
	"strings"
	"time"

	gnet "github.com/shirou/gopsutil/v3/net"

	"github.com/srbot/notesdk/pkg/logtrace"
)

// RTT thresholds for effective connection types.
const (
	slow2GRTT = 2000 * time.Millisecond
	rtt2G     = 1400 * time.Millisecond
	rtt3G     = 270 * time.Millisecond
)

// HostConditions reads interface state from the operating system and, when
// ProbeAddr is set, estimates link quality from a TCP connect round trip.
type HostConditions struct {
	ProbeAddr    string
	ProbeTimeout time.Duration

	interfaces func(ctx context.Context) (gnet.InterfaceStatList, error)
	dial       func(ctx context.Context, network, addr string) (net.Conn, error)
}

func NewHostConditions(probeAddr string, probeTimeout time.Duration) *HostConditions {
	if probeTimeout <= 0 {
		probeTimeout = 3 * time.Second
	}
	d := &net.Dialer{}
	return &HostConditions{
		ProbeAddr:    probeAddr,
		ProbeTimeout: probeTimeout,
		interfaces:   gnet.InterfacesWithContext,
		dial:         d.DialContext,
	}
}

// Online reports whether any non-loopback interface is up with an address.
// If interfaces cannot be listed the host is assumed online.
func (h *HostConditions) Online(ctx context.Context) bool {
	ifs, err := h.interfaces(ctx)
	if err != nil {
		logtrace.Warn(ctx, "failed to list network interfaces", logtrace.Fields{
			logtrace.FieldModule: "netprofile",
			logtrace.FieldError:  err.Error(),
		})
		return true
	}
	return len(usableNames(ifs)) > 0
}

func (h *HostConditions) Signal(ctx context.Context) Signal {
	ifs, err := h.interfaces(ctx)
	if err != nil {
		return Signal{}
	}

	linkType := ""
	for _, name := range usableNames(ifs) {
		if isWireless(name) {
			linkType = string(KindWiFi)
			break
		}
	}

	if h.ProbeAddr == "" {
		if linkType == "" {
			return Signal{}
		}
		return Signal{Available: true, EffectiveType: string(Kind4G), Type: linkType}
	}

	rtt, err := h.probe(ctx)
	if err != nil {
		logtrace.Debug(ctx, "rtt probe failed", logtrace.Fields{
			logtrace.FieldModule: "netprofile",
			logtrace.FieldError:  err.Error(),
			"probe_addr":         h.ProbeAddr,
		})
		return Signal{Available: true, EffectiveType: string(KindUnknown), Type: linkType}
	}
	return Signal{Available: true, EffectiveType: string(classifyRTT(rtt)), Type: linkType}
}

func (h *HostConditions) probe(ctx context.Context) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, h.ProbeTimeout)
	defer cancel()

	start := time.Now()
	conn, err := h.dial(ctx, "tcp", h.ProbeAddr)
	if err != nil {
		return 0, err
	}
	rtt := time.Since(start)
	_ = conn.Close()
	return rtt, nil
}

// Watch polls interface state every interval and emits on the returned
// channel whenever the set of usable interfaces changes. The channel is
// closed when ctx is done.
func (h *HostConditions) Watch(ctx context.Context, interval time.Duration) <-chan struct{} {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	out := make(chan struct{}, 1)

	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		last := h.fingerprint(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fp := h.fingerprint(ctx)
				if fp == last {
					continue
				}
				last = fp
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out
}

func (h *HostConditions) fingerprint(ctx context.Context) string {
	ifs, err := h.interfaces(ctx)
	if err != nil {
		return ""
	}
	names := usableNames(ifs)
	sort.Strings(names)
	return strings.Join(names, ",")
}

func usableNames(ifs gnet.InterfaceStatList) []string {
	var names []string
	for _, i := range ifs {
		if hasFlag(i.Flags, "up") && !hasFlag(i.Flags, "loopback") && len(i.Addrs) > 0 {
			names = append(names, i.Name)
		}
	}
	return names
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}

func isWireless(name string) bool {
	n := strings.ToLower(name)
	return strings.HasPrefix(n, "wl") || strings.Contains(n, "wi-fi") || strings.Contains(n, "wireless")
}

// classifyRTT buckets a round trip into an effective connection type.
func classifyRTT(rtt time.Duration) Kind {
	switch {
	case rtt >= slow2GRTT:
		return KindSlow2G
	case rtt >= rtt2G:
		return Kind2G
	case rtt >= rtt3G:
		return Kind3G
	default:
		return Kind4G
	}
}
