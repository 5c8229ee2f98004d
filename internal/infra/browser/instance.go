// Package browser manages the shared browser-automation instances and the
// bounded pool that rations them across concurrent scans. Each instance is a
// dedicated headless Chrome process driven over the DevTools protocol;
// enumerators borrow an instance for the duration of one task.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// InstanceConfig controls how browser instances are launched.
type InstanceConfig struct {
	// ChromiumPath overrides the binary chromedp discovers on PATH.
	ChromiumPath string

	// Headless runs the browser without a display. Defaults to true.
	Headless bool

	// NoSandbox disables the Chrome sandbox. Required in most containers.
	NoSandbox bool

	// PageTimeout bounds a single navigation performed through the instance.
	PageTimeout time.Duration

	// UserAgent overrides the browser's user agent string when non-empty.
	UserAgent string

	// ExtraFlags are appended to the launch arguments as name=true flags.
	ExtraFlags []string
}

// DefaultInstanceConfig returns the launch settings used when the composing
// process supplies none.
func DefaultInstanceConfig() InstanceConfig {
	return InstanceConfig{
		Headless:    true,
		NoSandbox:   true,
		PageTimeout: 30 * time.Second,
	}
}

// Instance is one live browser-automation process. It is exclusively owned
// by the pool slot holder between Acquire and Release; the pool replaces it
// if it fails irrecoverably during use.
type Instance struct {
	cfg         InstanceConfig
	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc
	launchedAt  time.Time
	failed      bool
}

// Launch starts a browser process and waits for its DevTools endpoint to
// come up. The returned instance must be closed by its owner (normally the
// pool) when no longer needed.
func Launch(ctx context.Context, cfg InstanceConfig) (*Instance, error) {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	if !cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.NoSandbox {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
	}
	if cfg.ChromiumPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ChromiumPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	opts = append(opts,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-default-apps", true),
	)
	for _, f := range cfg.ExtraFlags {
		opts = append(opts, chromedp.Flag(f, true))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Run a no-op to force the browser process to start now, so launch
	// failures surface here instead of inside the first enumerator.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &Instance{
		cfg:         cfg,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		browserCtx:  browserCtx,
		cancel:      browserCancel,
		launchedAt:  time.Now(),
	}, nil
}

// Context returns the chromedp browser context enumerators drive the
// instance through. New tabs are derived from it with chromedp.NewContext.
func (i *Instance) Context() context.Context { return i.browserCtx }

// PageTimeout returns the per-navigation bound configured for this instance.
func (i *Instance) PageTimeout() time.Duration { return i.cfg.PageTimeout }

// LaunchedAt returns when the browser process started.
func (i *Instance) LaunchedAt() time.Time { return i.launchedAt }

// MarkFailed flags the instance as irrecoverably broken. The pool recycles
// flagged instances instead of returning them to service.
func (i *Instance) MarkFailed() { i.failed = true }

// Failed reports whether the instance has been flagged as broken.
func (i *Instance) Failed() bool { return i.failed }

// Healthy probes the browser process with a no-op command. A dead or
// wedged process fails the probe within the given timeout.
func (i *Instance) Healthy(timeout time.Duration) bool {
	if i.failed || i.browserCtx.Err() != nil {
		return false
	}
	if i.allocCtx == nil {
		// Not process-backed; nothing to probe.
		return true
	}
	ctx, cancel := context.WithTimeout(i.browserCtx, timeout)
	defer cancel()
	return chromedp.Run(ctx) == nil
}

// Close shuts the browser process down. It is safe to call more than once.
func (i *Instance) Close() {
	if i.cancel != nil {
		i.cancel()
		i.cancel = nil
	}
	if i.allocCancel != nil {
		i.allocCancel()
		i.allocCancel = nil
	}
}
