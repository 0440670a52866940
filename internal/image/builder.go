// Package image builds the per-variant container images.
package image

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"aidev/internal/config"
	"aidev/internal/logging"
	"aidev/internal/tools"
)

// Repository is the local image repository for built variants.
const Repository = "aidev"

// Tag returns the image reference for a tool selection.
func Tag(sel tools.Selection) string {
	return Repository + ":" + sel.Variant()
}

// Engine is the subset of the container runtime the builder needs.
type Engine interface {
	ImageExists(ctx context.Context, ref string) (bool, error)
	BuildImage(ctx context.Context, buildContext io.Reader, tag string, buildArgs map[string]*string, out io.Writer) error
}

// Builder produces variant images on demand.
type Builder struct {
	engine   Engine
	log      *logging.Logger
	base     string
	versions config.VersionsConfig

	// Progress receives the build output stream (nil discards it).
	Progress io.Writer
}

// NewBuilder creates a builder. base overrides the node base image when
// non-empty; versions pins the tool versions baked into the image.
func NewBuilder(engine Engine, log *logging.Logger, base string, versions config.VersionsConfig) *Builder {
	return &Builder{
		engine:   engine,
		log:      log,
		base:     base,
		versions: versions,
	}
}

// Ensure makes the image for sel available, building it when missing.
// With force set the image is rebuilt unconditionally, refreshing
// "latest" tool installs. Returns the image reference.
func (b *Builder) Ensure(ctx context.Context, sel tools.Selection, force bool) (string, error) {
	tag := Tag(sel)

	if !force {
		exists, err := b.engine.ImageExists(ctx, tag)
		if err != nil {
			return "", err
		}
		if exists {
			b.log.Debugf("image %s already present", tag)
			return tag, nil
		}
	}

	b.log.Infof("building image %s", tag)

	buildContext, err := buildContextTar(Dockerfile(sel, b.base))
	if err != nil {
		return "", fmt.Errorf("failed to assemble build context: %w", err)
	}

	if err := b.engine.BuildImage(ctx, buildContext, tag, b.buildArgs(), b.Progress); err != nil {
		return "", err
	}
	return tag, nil
}

func (b *Builder) buildArgs() map[string]*string {
	claude := orDefault(b.versions.Claude, "latest")
	copilot := orDefault(b.versions.Copilot, "latest")
	node := orDefault(b.versions.Node, "22")
	return map[string]*string{
		"CLAUDE_VERSION":  &claude,
		"COPILOT_VERSION": &copilot,
		"NODE_VERSION":    &node,
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Dockerfile renders the image definition for a tool selection. The
// base layer carries the firewall tooling (iptables, ipset, iproute2,
// dnsutils) the in-container installer depends on.
func Dockerfile(sel tools.Selection, base string) string {
	var sb strings.Builder

	if base != "" {
		fmt.Fprintf(&sb, "FROM %s\n", base)
	} else {
		sb.WriteString("ARG NODE_VERSION=22\n")
		sb.WriteString("FROM node:${NODE_VERSION}-bookworm\n")
	}

	sb.WriteString(`
ARG CLAUDE_VERSION=latest
ARG COPILOT_VERSION=latest

RUN apt-get update && apt-get install -y --no-install-recommends \
    iptables ipset iproute2 dnsutils \
    curl ca-certificates git openssh-client \
    zsh fish less procps \
 && rm -rf /var/lib/apt/lists/*

`)

	for _, tool := range sel.Selected() {
		sb.WriteString(tool.InstallFragment())
		sb.WriteString("\n")
	}

	sb.WriteString(`
USER node
WORKDIR /workspace
`)

	return sb.String()
}

// buildContextTar wraps the Dockerfile in an in-memory tar archive, the
// format the engine build endpoint expects.
func buildContextTar(dockerfile string) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	hdr := &tar.Header{
		Name:    "Dockerfile",
		Mode:    0o644,
		Size:    int64(len(dockerfile)),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, err
	}
	if _, err := tw.Write([]byte(dockerfile)); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}

	return &buf, nil
}
