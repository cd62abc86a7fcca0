// Package statsview serves Go runtime charts (heap, goroutines, GC pauses)
// while the emulator runs.
package statsview

import (
	"fmt"
	"net"
	"strconv"

	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"
)

const DefaultAddress = "localhost:12600"

const path = "/debug/statsview"

// URL returns the chart page served for addr. An empty addr selects
// DefaultAddress and an empty host selects localhost.
func URL(addr string) (string, error) {
	addr, err := normalize(addr)
	if err != nil {
		return "", err
	}
	return "http://" + addr + path, nil
}

func normalize(addr string) (string, error) {
	if addr == "" {
		return DefaultAddress, nil
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("stats address %q: %w", addr, err)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n <= 0 || n > 65535 {
		return "", fmt.Errorf("stats address %q: bad port", addr)
	}
	if host == "" {
		host = "localhost"
	}
	return net.JoinHostPort(host, port), nil
}

// Launch starts the chart server on addr in a new goroutine and returns the
// URL it serves. The address is bound once up front so a port that is taken
// is reported here instead of being lost in the server goroutine.
func Launch(addr string) (string, error) {
	addr, err := normalize(addr)
	if err != nil {
		return "", err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("stats server: %w", err)
	}
	if err := ln.Close(); err != nil {
		return "", fmt.Errorf("stats server: %w", err)
	}

	go func() {
		viewer.SetConfiguration(viewer.WithAddr(addr))
		mgr := statsview.New()
		mgr.Start()
	}()
	return "http://" + addr + path, nil
}
