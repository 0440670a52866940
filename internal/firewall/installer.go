package firewall

import (
	"context"
	"fmt"
	"strings"

	"aidev/internal/logging"
	"aidev/internal/runtime"
)

// SetName is the ipset collection holding the allow-listed addresses.
const SetName = "aidev-allowed"

// adminPort stays reachable for host-side tooling regardless of policy.
const adminPort = "22"

// Execer runs commands inside a container. Privileged execs are
// required for packet-filter manipulation.
type Execer interface {
	ExecCapture(ctx context.Context, containerID string, cmd []string, privileged bool) (*runtime.ExecResult, error)
}

// Installer applies the default-deny egress policy inside a container.
// Rules are rebuilt from scratch on every run; there is no incremental
// reconciliation.
type Installer struct {
	exec     Execer
	log      *logging.Logger
	snapshot dnsSnapshot
}

// dnsSnapshot holds the NAT rules for the runtime's embedded DNS
// resolver, captured before the flush so they can be reinstated. The
// user chains those rules live in (or jump to) are recorded too: the
// flush deletes them, so they must be recreated before any append.
type dnsSnapshot struct {
	rules  [][]string
	chains []string
}

// NewInstaller creates an installer using exec to reach the container.
func NewInstaller(exec Execer, log *logging.Logger) *Installer {
	return &Installer{exec: exec, log: log}
}

// Install applies the policy from set and verifies it. The step order
// is load-bearing: the embedded-DNS snapshot must precede the flush,
// and the narrow always-allow rules must precede the default-deny
// switch or the installer cuts itself off mid-run.
func (in *Installer) Install(ctx context.Context, containerID string, set *AddressSet) error {
	steps := []struct {
		name string
		run  func() error
	}{
		{"snapshot embedded DNS rules", func() error { return in.snapshotDNS(ctx, containerID) }},
		{"flush existing rules", func() error { return in.flush(ctx, containerID) }},
		{"restore embedded DNS rules", func() error { return in.restoreDNS(ctx, containerID) }},
		{"install pre-deny allows", func() error { return in.preDenyAllows(ctx, containerID) }},
		{"populate address set", func() error { return in.populateSet(ctx, containerID, set) }},
		{"allow host subnet", func() error { return in.allowHostSubnet(ctx, containerID) }},
		{"set default-deny policies", func() error { return in.defaultDeny(ctx, containerID) }},
		{"allow established connections", func() error { return in.allowEstablished(ctx, containerID) }},
		{"allow address-set egress", func() error { return in.allowSetEgress(ctx, containerID) }},
		{"reject remaining egress", func() error { return in.rejectRemaining(ctx, containerID) }},
		{"verify policy", func() error { return in.verify(ctx, containerID) }},
	}

	for _, step := range steps {
		if err := step.run(); err != nil {
			return fmt.Errorf("firewall step %q: %w", step.name, err)
		}
	}

	in.log.Infof("egress firewall installed (%d allow-list entries)", set.Len())
	return nil
}

// run executes a single command in the container and fails on non-zero
// exit unless the exit is listed in tolerated.
func (in *Installer) run(ctx context.Context, containerID string, tolerateFailure bool, cmd ...string) (*runtime.ExecResult, error) {
	res, err := in.exec.ExecCapture(ctx, containerID, cmd, true)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 && !tolerateFailure {
		return res, fmt.Errorf("%s exited %d: %s", cmd[0], res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return res, nil
}

func (in *Installer) snapshotDNS(ctx context.Context, containerID string) error {
	res, err := in.run(ctx, containerID, false, "iptables-save", "-t", "nat")
	if err != nil {
		return err
	}

	in.snapshot = dnsSnapshot{}
	declared := make(map[string]bool)
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, ":"):
			fields := strings.Fields(strings.TrimPrefix(line, ":"))
			if len(fields) > 0 && !builtinNATChains[fields[0]] {
				declared[fields[0]] = true
			}
		case strings.HasPrefix(line, "-A ") && strings.Contains(line, "127.0.0.11"):
			in.snapshot.rules = append(in.snapshot.rules, strings.Fields(strings.TrimPrefix(line, "-A ")))
		}
	}

	// Keep only the user chains the saved rules actually touch, in the
	// order iptables-save declared them.
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, ":") {
			continue
		}
		fields := strings.Fields(strings.TrimPrefix(line, ":"))
		if len(fields) > 0 && declared[fields[0]] && in.rulesReference(fields[0]) {
			in.snapshot.chains = append(in.snapshot.chains, fields[0])
		}
	}
	return nil
}

var builtinNATChains = map[string]bool{
	"PREROUTING":  true,
	"INPUT":       true,
	"OUTPUT":      true,
	"POSTROUTING": true,
}

func (in *Installer) rulesReference(chain string) bool {
	for _, rule := range in.snapshot.rules {
		for _, field := range rule {
			if field == chain {
				return true
			}
		}
	}
	return false
}

func (in *Installer) flush(ctx context.Context, containerID string) error {
	cmds := [][]string{
		{"iptables", "-F"},
		{"iptables", "-X"},
		{"iptables", "-t", "nat", "-F"},
		{"iptables", "-t", "nat", "-X"},
		{"iptables", "-t", "mangle", "-F"},
		{"iptables", "-t", "mangle", "-X"},
	}
	for _, cmd := range cmds {
		if _, err := in.run(ctx, containerID, false, cmd...); err != nil {
			return err
		}
	}

	// A leftover set from a previous run may or may not exist.
	_, err := in.run(ctx, containerID, true, "ipset", "destroy", SetName)
	return err
}

func (in *Installer) restoreDNS(ctx context.Context, containerID string) error {
	// The flush removed the user chains the saved rules append to, so
	// recreate them first or every append fails with "no chain/target".
	for _, chain := range in.snapshot.chains {
		if _, err := in.run(ctx, containerID, false, "iptables", "-t", "nat", "-N", chain); err != nil {
			return err
		}
	}
	for _, rule := range in.snapshot.rules {
		cmd := append([]string{"iptables", "-t", "nat", "-A"}, rule...)
		if _, err := in.run(ctx, containerID, false, cmd...); err != nil {
			return err
		}
	}
	return nil
}

func (in *Installer) preDenyAllows(ctx context.Context, containerID string) error {
	cmds := [][]string{
		{"iptables", "-A", "OUTPUT", "-p", "udp", "--dport", "53", "-j", "ACCEPT"},
		{"iptables", "-A", "INPUT", "-p", "udp", "--sport", "53", "-j", "ACCEPT"},
		{"iptables", "-A", "OUTPUT", "-p", "tcp", "--dport", adminPort, "-j", "ACCEPT"},
		{"iptables", "-A", "INPUT", "-p", "tcp", "--sport", adminPort, "-m", "state", "--state", "ESTABLISHED", "-j", "ACCEPT"},
		{"iptables", "-A", "INPUT", "-i", "lo", "-j", "ACCEPT"},
		{"iptables", "-A", "OUTPUT", "-o", "lo", "-j", "ACCEPT"},
	}
	for _, cmd := range cmds {
		if _, err := in.run(ctx, containerID, false, cmd...); err != nil {
			return err
		}
	}
	return nil
}

func (in *Installer) populateSet(ctx context.Context, containerID string, set *AddressSet) error {
	if _, err := in.run(ctx, containerID, false, "ipset", "create", SetName, "hash:net"); err != nil {
		return err
	}
	for _, entry := range set.Entries() {
		if err := ValidateEntry(entry); err != nil {
			return err
		}
		if _, err := in.run(ctx, containerID, false, "ipset", "add", SetName, entry); err != nil {
			return err
		}
	}
	return nil
}

func (in *Installer) allowHostSubnet(ctx context.Context, containerID string) error {
	res, err := in.run(ctx, containerID, false, "ip", "route")
	if err != nil {
		return err
	}

	subnet, err := hostSubnet(res.Stdout)
	if err != nil {
		return err
	}

	cmds := [][]string{
		{"iptables", "-A", "INPUT", "-s", subnet, "-j", "ACCEPT"},
		{"iptables", "-A", "OUTPUT", "-d", subnet, "-j", "ACCEPT"},
	}
	for _, cmd := range cmds {
		if _, err := in.run(ctx, containerID, false, cmd...); err != nil {
			return err
		}
	}
	return nil
}

func (in *Installer) defaultDeny(ctx context.Context, containerID string) error {
	for _, chain := range []string{"INPUT", "FORWARD", "OUTPUT"} {
		if _, err := in.run(ctx, containerID, false, "iptables", "-P", chain, "DROP"); err != nil {
			return err
		}
	}
	return nil
}

func (in *Installer) allowEstablished(ctx context.Context, containerID string) error {
	cmds := [][]string{
		{"iptables", "-A", "INPUT", "-m", "state", "--state", "ESTABLISHED,RELATED", "-j", "ACCEPT"},
		{"iptables", "-A", "OUTPUT", "-m", "state", "--state", "ESTABLISHED,RELATED", "-j", "ACCEPT"},
	}
	for _, cmd := range cmds {
		if _, err := in.run(ctx, containerID, false, cmd...); err != nil {
			return err
		}
	}
	return nil
}

func (in *Installer) allowSetEgress(ctx context.Context, containerID string) error {
	_, err := in.run(ctx, containerID, false,
		"iptables", "-A", "OUTPUT", "-m", "set", "--match-set", SetName, "dst", "-j", "ACCEPT")
	return err
}

func (in *Installer) rejectRemaining(ctx context.Context, containerID string) error {
	_, err := in.run(ctx, containerID, false,
		"iptables", "-A", "OUTPUT", "-j", "REJECT", "--reject-with", "icmp-admin-prohibited")
	return err
}

// hostSubnet derives the host-local /24 from the default route gateway.
func hostSubnet(routeOutput string) (string, error) {
	for _, line := range strings.Split(routeOutput, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 3 && fields[0] == "default" && fields[1] == "via" {
			gw := fields[2]
			idx := strings.LastIndex(gw, ".")
			if idx < 0 || ValidateEntry(gw) != nil {
				return "", fmt.Errorf("unexpected gateway address %q", gw)
			}
			return gw[:idx] + ".0/24", nil
		}
	}
	return "", fmt.Errorf("no default route found")
}
