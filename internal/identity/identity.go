// Package identity derives deterministic container names from workspace paths.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// Prefix is the namespace tag applied to every derived container name.
	Prefix = "ai-dev-"

	// MaxNameLen caps derived names so they stay valid container names
	// and usable as hostname fragments.
	MaxNameLen = 63

	// digestLen is the number of hex characters appended when a long
	// name is truncated.
	digestLen = 8
)

// Resolve turns a workspace argument into an absolute, symlink-resolved
// directory path. An empty argument means the current directory.
func Resolve(arg string) (string, error) {
	dir := arg
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("determining current directory: %w", err)
		}
		dir = wd
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving %q: %w", dir, err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("workspace %q does not exist: %w", abs, err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("workspace %q does not exist: %w", resolved, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("workspace %q is not a directory", resolved)
	}

	return resolved, nil
}

// Derive maps an absolute workspace path to a deterministic container name.
// The same path always yields the same name, and distinct paths yield
// distinct names even when truncation is needed: long names keep a
// prefix-safe head and gain a short digest of the full original path.
func Derive(path string) string {
	slug := strings.ToLower(filepath.ToSlash(path))
	slug = strings.TrimPrefix(slug, "/")

	var b strings.Builder
	b.Grow(len(slug))
	for _, r := range slug {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}

	name := collapseHyphens(b.String())
	name = strings.Trim(name, "-")
	name = Prefix + name

	if len(name) <= MaxNameLen {
		return name
	}

	sum := sha256.Sum256([]byte(path))
	digest := hex.EncodeToString(sum[:])[:digestLen]

	head := name[:MaxNameLen-digestLen-1]
	head = strings.TrimRight(head, "-")
	return head + "-" + digest
}

func collapseHyphens(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prev := false
	for _, r := range s {
		if r == '-' {
			if prev {
				continue
			}
			prev = true
		} else {
			prev = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
