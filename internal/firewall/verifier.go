package firewall

import (
	"context"
	"fmt"
)

// Verification probes. The deny probe targets a well-known host that is
// never on the allow-list; the allow probe targets an endpoint covered
// by the provider ranges.
const (
	denyProbeURL  = "https://example.com"
	allowProbeURL = "https://api.github.com/zen"
)

// verify exercises the installed policy from inside the container.
// Reaching the unallowed host means the policy is too permissive;
// failing to reach the allowed host means it is too restrictive. Either
// way the installation as a whole is reported failed.
func (in *Installer) verify(ctx context.Context, containerID string) error {
	denied, err := in.probe(ctx, containerID, denyProbeURL)
	if err != nil {
		return err
	}
	if denied {
		return fmt.Errorf("policy too permissive: %s was reachable", denyProbeURL)
	}

	allowed, err := in.probe(ctx, containerID, allowProbeURL)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("policy too restrictive: %s was not reachable", allowProbeURL)
	}

	in.log.Debugf("verification passed: %s blocked, %s reachable", denyProbeURL, allowProbeURL)
	return nil
}

// probe reports whether url is reachable from inside the container.
func (in *Installer) probe(ctx context.Context, containerID, url string) (bool, error) {
	res, err := in.exec.ExecCapture(ctx, containerID,
		[]string{"curl", "--connect-timeout", "5", "-s", "-o", "/dev/null", url}, true)
	if err != nil {
		return false, fmt.Errorf("failed to probe %s: %w", url, err)
	}
	return res.ExitCode == 0, nil
}
