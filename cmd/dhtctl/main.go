// Package main provides a control utility for inspecting a running
// dhtnode instance over its HTTP metrics endpoint.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"
)

var (
	version   = "0.1.0-dev"
	buildTime = "unknown"
)

// snapshot mirrors dhtmetrics.Snapshot without importing the server
// package, so dhtctl stays a thin HTTP client with no dependency on the
// node's internals.
type snapshot struct {
	PacketsByKind           map[string]int64 `json:"packets_by_kind"`
	PacketErrors            int64            `json:"packet_errors"`
	CloseListSize           int64            `json:"close_list_size"`
	FriendCount             int64            `json:"friend_count"`
	BootstrapActive         int64            `json:"bootstrap_active"`
	PingIDsOutstanding      int64            `json:"ping_ids_outstanding"`
	PingIDMismatches        int64            `json:"ping_id_mismatches"`
	OnionRequestsForwarded  int64            `json:"onion_requests_forwarded"`
	OnionResponsesForwarded int64            `json:"onion_responses_forwarded"`
	OnionReturnInvalid      int64            `json:"onion_return_invalid"`
	TicksRun                int64            `json:"ticks_run"`
}

func main() {
	metricsAddr := flag.String("metrics", "127.0.0.1:9100", "Address of the node's HTTP metrics server")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("dhtctl version %s (built %s)\n", version, buildTime)
		fmt.Println("Control utility for dhtnode")
		os.Exit(0)
	}

	if len(flag.Args()) == 0 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Args()[0]
	if err := executeCommand(command, *metricsAddr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("dhtctl - Control utility for dhtnode")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  dhtctl [options] <command>")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -metrics <address>  Node's HTTP metrics address (default: 127.0.0.1:9100)")
	fmt.Println("  -version            Show version information")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  status     Show close-list, friend, and onion counters")
	fmt.Println("  packets    Show packet counts by kind")
	fmt.Println("  raw        Dump the raw JSON metrics snapshot")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  dhtctl -metrics 127.0.0.1:9100 status")
	fmt.Println("  dhtctl packets")
}

func executeCommand(command, metricsAddr string) error {
	switch strings.ToLower(command) {
	case "status", "packets", "raw":
	default:
		return fmt.Errorf("unknown command: %s", command)
	}

	body, err := fetchMetrics(metricsAddr)
	if err != nil {
		return fmt.Errorf("failed to reach metrics server: %w", err)
	}

	switch strings.ToLower(command) {
	case "status":
		return showStatus(body)
	case "packets":
		return showPackets(body)
	case "raw":
		fmt.Println(string(body))
		return nil
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func fetchMetrics(addr string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := fmt.Sprintf("http://%s/metrics/json", addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func decodeSnapshot(body []byte) (snapshot, error) {
	var snap snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return snapshot{}, fmt.Errorf("decoding metrics response: %w", err)
	}
	return snap, nil
}

func showStatus(body []byte) error {
	snap, err := decodeSnapshot(body)
	if err != nil {
		return err
	}

	fmt.Println("=== dhtnode Status ===")
	fmt.Println()
	fmt.Printf("Close list size:      %d\n", snap.CloseListSize)
	fmt.Printf("Friend count:         %d\n", snap.FriendCount)
	fmt.Printf("Bootstrap active:     %d\n", snap.BootstrapActive)
	fmt.Printf("Ping-ids outstanding: %d\n", snap.PingIDsOutstanding)
	fmt.Printf("Ping-id mismatches:   %d\n", snap.PingIDMismatches)
	fmt.Println()
	fmt.Printf("Onion requests forwarded:  %d\n", snap.OnionRequestsForwarded)
	fmt.Printf("Onion responses forwarded: %d\n", snap.OnionResponsesForwarded)
	fmt.Printf("Onion return invalid:      %d\n", snap.OnionReturnInvalid)
	fmt.Println()
	fmt.Printf("Packet errors: %d\n", snap.PacketErrors)
	fmt.Printf("Ticks run:     %d\n", snap.TicksRun)
	return nil
}

func showPackets(body []byte) error {
	snap, err := decodeSnapshot(body)
	if err != nil {
		return err
	}

	fmt.Println("=== Packets by Kind ===")
	fmt.Println()
	if len(snap.PacketsByKind) == 0 {
		fmt.Println("No packets recorded yet")
		return nil
	}

	kinds := make([]string, 0, len(snap.PacketsByKind))
	for kind := range snap.PacketsByKind {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Printf("%-24s %d\n", kind, snap.PacketsByKind[kind])
	}
	return nil
}
