// Command healthcheck probes /healthz for container health checks. It exits
// non-zero when the service is unreachable or unhealthy.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	client := &http.Client{Timeout: 3 * time.Second}
	ctx := context.Background()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL(os.Getenv("HTTP_ADDR")), nil)
	if err != nil {
		os.Exit(1)
	}
	resp, err := client.Do(req)
	if err != nil {
		os.Exit(1)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("failed to close response body: %v", err)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}

// healthURL maps a listen address such as ":8080" or "0.0.0.0:9000" to a
// loopback URL.
func healthURL(addr string) string {
	if addr == "" {
		addr = ":8080"
	}
	host, port := "localhost", strings.TrimPrefix(addr, ":")
	if i := strings.LastIndex(addr, ":"); i > 0 {
		if h := addr[:i]; h != "0.0.0.0" && h != "[::]" {
			host = h
		}
		port = addr[i+1:]
	}
	return "http://" + host + ":" + port + "/healthz"
}
