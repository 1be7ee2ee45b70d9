package ae200

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DiscoveryResult represents a discovered AE-200 controller
type DiscoveryResult struct {
	IP     string
	Groups []DeviceRecord
}

// Discover searches for AE-200 controllers on the network.
// It scans the local /24 subnets for an open HTTP port and confirms each
// candidate with a group list request.
// The context controls the overall discovery timeout.
// If the context has no deadline, a 3-second timeout is applied.
func Discover(ctx context.Context, exec Executor) ([]DiscoveryResult, error) {
	// Apply default timeout if context has no deadline
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
	}

	// Find local IP and scan /24
	ips, err := getLocalIPs()
	if err != nil {
		return nil, fmt.Errorf("get local IPs: %w", err)
	}

	var hosts []string
	for _, ip := range ips {
		baseIP := ip.Mask(net.CIDRMask(24, 32))
		for i := 1; i < 255; i++ {
			hosts = append(hosts, net.IP{baseIP[0], baseIP[1], baseIP[2], byte(i)}.String())
		}
	}

	return discoverHosts(ctx, exec, hosts, "80"), nil
}

// discoverHosts probes each host on port and returns those answering a group
// list request, sorted by address.
func discoverHosts(ctx context.Context, exec Executor, hosts []string, port string) []DiscoveryResult {
	// Use buffered channel to prevent goroutine leaks
	openCh := make(chan string, len(hosts))
	var wg sync.WaitGroup

	for _, host := range hosts {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			var d net.Dialer
			dialCtx, dialCancel := context.WithTimeout(ctx, 200*time.Millisecond)
			defer dialCancel()
			conn, err := d.DialContext(dialCtx, "tcp", addr)
			if err != nil {
				return
			}
			conn.Close()
			openCh <- addr
		}(net.JoinHostPort(host, port))
	}
	wg.Wait()
	close(openCh)

	var (
		mu      sync.Mutex
		results []DiscoveryResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for addr := range openCh {
		g.Go(func() error {
			records, err := exec.ListUnits(gctx, addressFor(addr, port))
			if err != nil {
				// Something else listens on this port.
				return nil
			}
			host, _, _ := net.SplitHostPort(addr)
			mu.Lock()
			results = append(results, DiscoveryResult{IP: host, Groups: records})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].IP < results[j].IP })
	return results
}

// addressFor drops the default HTTP port so the Origin header matches what a
// browser would send.
func addressFor(hostPort, port string) string {
	if port == "80" {
		host, _, _ := net.SplitHostPort(hostPort)
		return host
	}
	return hostPort
}

func getLocalIPs() ([]net.IP, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}

	var ips []net.IP
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ip4 := ipnet.IP.To4(); ip4 != nil {
				ips = append(ips, ip4)
			}
		}
	}
	return ips, nil
}
