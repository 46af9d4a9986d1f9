package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tickerhw/wifid/netman"
	"github.com/tickerhw/wifid/wifi"
)

func formatKnown(n netman.KnownNetwork) string {
	parts := []string{fmt.Sprintf("priority %d", n.Priority)}
	if n.AutoConnect {
		parts = append(parts, "auto")
	} else {
		parts = append(parts, "manual")
	}
	if n.LastConnectedAt != nil {
		parts = append(parts, fmt.Sprintf("last seen %s", formatAgo(*n.LastConnectedAt)))
		parts = append(parts, fmt.Sprintf("%d dBm", n.LastSignal))
	} else {
		parts = append(parts, "never connected")
	}
	return strings.Join(parts, ", ")
}

func runList(w io.Writer, asJSON bool, store *netman.Store) error {
	known := store.List()
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(known)
	}

	for _, n := range known {
		fmt.Fprintf(w, "%s\t%s\n", n.Name, formatKnown(n))
	}
	return nil
}

func formatObserved(obs wifi.ObservedNetwork) string {
	parts := []string{fmt.Sprintf("%d dBm", obs.Signal), obs.Security.String()}
	if obs.Known {
		parts = append(parts, "known")
	}
	return strings.Join(parts, ", ")
}

func runScan(w io.Writer, asJSON bool, radio wifi.Radio, store *netman.Store) error {
	results, err := radio.Scan(true)
	if err != nil {
		return fmt.Errorf("failed to scan: %w", err)
	}
	for i := range results {
		if kn, ok := store.Get(results[i].Name); ok {
			results[i].Known = true
			results[i].AutoConnectEligible = kn.AutoConnect
		}
	}
	wifi.SortObserved(results)

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	for _, obs := range results {
		fmt.Fprintf(w, "%s\t%s\n", obs.Name, formatObserved(obs))
	}
	return nil
}

func runAdd(w io.Writer, store *netman.Store, name, secret string, priority int, autoConnect bool) error {
	if !store.Add(name, secret, priority, autoConnect) {
		return fmt.Errorf("could not add network: %s", name)
	}
	kn, _ := store.Get(name)
	fmt.Fprintf(w, "added %s (priority %d)\n", kn.Name, kn.Priority)
	return nil
}

func runRemove(w io.Writer, store *netman.Store, name string) error {
	if !store.Remove(name) {
		return fmt.Errorf("unknown network: %s", name)
	}
	fmt.Fprintf(w, "removed %s\n", name)
	return nil
}

// runConnect drives a single attempt directly against the radio, bypassing
// the manager's retry policy. Useful for checking a credential.
func runConnect(ctx context.Context, w io.Writer, radio wifi.Radio, store *netman.Store, name string, timeout time.Duration) error {
	kn, ok := store.Get(name)
	if !ok {
		return fmt.Errorf("unknown network: %s (add it first)", name)
	}

	if err := radio.BeginConnect(kn.Name, kn.Secret); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return wifi.ErrConnectTimeout
		case ev := <-radio.Events():
			switch ev.Kind {
			case wifi.EventLinkUp:
				if ev.Name != kn.Name {
					continue
				}
				fmt.Fprintf(w, "connected to %s (%d dBm)\n", ev.Name, ev.Signal)
				return nil
			case wifi.EventAuthRejected:
				return wifi.ErrAuthRejected
			case wifi.EventNetworkNotFound:
				return wifi.ErrNetworkNotFound
			case wifi.EventRadioFault:
				return fmt.Errorf("%w: %v", wifi.ErrRadioFault, ev.Err)
			}
		}
	}
}

func runQR(w io.Writer, store *netman.Store, name string) error {
	kn, ok := store.Get(name)
	if !ok {
		return fmt.Errorf("unknown network: %s", name)
	}
	qr, err := renderJoinQR(kn.Name, kn.Secret)
	if err != nil {
		return fmt.Errorf("failed to render qr code: %w", err)
	}
	fmt.Fprint(w, qr)
	return nil
}
