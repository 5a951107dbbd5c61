package netprofile

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	gnet "github.com/shirou/gopsutil/v3/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func iface(name string, flags ...string) gnet.InterfaceStat {
	return gnet.InterfaceStat{
		Name:  name,
		Flags: flags,
		Addrs: gnet.InterfaceAddrList{{Addr: "192.168.1.10/24"}},
	}
}

func hostWith(ifs gnet.InterfaceStatList, err error) *HostConditions {
	h := NewHostConditions("", time.Second)
	h.interfaces = func(context.Context) (gnet.InterfaceStatList, error) { return ifs, err }
	return h
}

func TestHostOnline(t *testing.T) {
	ctx := context.Background()

	assert.False(t, hostWith(gnet.InterfaceStatList{iface("lo", "up", "loopback")}, nil).Online(ctx))
	assert.False(t, hostWith(gnet.InterfaceStatList{iface("eth0", "broadcast")}, nil).Online(ctx))
	assert.True(t, hostWith(gnet.InterfaceStatList{iface("lo", "up", "loopback"), iface("eth0", "up")}, nil).Online(ctx))

	noAddr := iface("eth0", "up")
	noAddr.Addrs = nil
	assert.False(t, hostWith(gnet.InterfaceStatList{noAddr}, nil).Online(ctx))

	assert.True(t, hostWith(nil, errors.New("permission denied")).Online(ctx))
}

func TestHostSignalWithoutProbe(t *testing.T) {
	ctx := context.Background()

	wired := hostWith(gnet.InterfaceStatList{iface("eth0", "up")}, nil)
	assert.Equal(t, Signal{}, wired.Signal(ctx))

	wireless := hostWith(gnet.InterfaceStatList{iface("wlan0", "up")}, nil)
	assert.Equal(t, Signal{Available: true, EffectiveType: "4g", Type: "wifi"}, wireless.Signal(ctx))
}

func TestHostSignalProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	h := hostWith(gnet.InterfaceStatList{iface("eth0", "up")}, nil)
	h.ProbeAddr = ln.Addr().String()

	sig := h.Signal(context.Background())
	assert.True(t, sig.Available)
	assert.Equal(t, "4g", sig.EffectiveType)
	assert.Equal(t, "", sig.Type)
}

func TestHostSignalProbeFailure(t *testing.T) {
	h := hostWith(gnet.InterfaceStatList{iface("wlp2s0", "up")}, nil)
	h.ProbeAddr = "probe.invalid:443"
	h.dial = func(context.Context, string, string) (net.Conn, error) {
		return nil, errors.New("connection refused")
	}

	sig := h.Signal(context.Background())
	assert.Equal(t, Signal{Available: true, EffectiveType: "unknown", Type: "wifi"}, sig)
}

func TestClassifyRTT(t *testing.T) {
	assert.Equal(t, KindSlow2G, classifyRTT(2500*time.Millisecond))
	assert.Equal(t, KindSlow2G, classifyRTT(2000*time.Millisecond))
	assert.Equal(t, Kind2G, classifyRTT(1500*time.Millisecond))
	assert.Equal(t, Kind3G, classifyRTT(300*time.Millisecond))
	assert.Equal(t, Kind4G, classifyRTT(40*time.Millisecond))
}

func TestHostWatchEmitsOnChange(t *testing.T) {
	var mu sync.Mutex
	current := gnet.InterfaceStatList{iface("eth0", "up")}

	h := NewHostConditions("", time.Second)
	h.interfaces = func(context.Context) (gnet.InterfaceStatList, error) {
		mu.Lock()
		defer mu.Unlock()
		return current, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	changes := h.Watch(ctx, 10*time.Millisecond)

	mu.Lock()
	current = gnet.InterfaceStatList{iface("eth0", "up"), iface("wlan0", "up")}
	mu.Unlock()

	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a change notification")
	}

	cancel()
	for range changes {
	}
}
