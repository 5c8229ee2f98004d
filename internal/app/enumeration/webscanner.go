// Package enumeration contains the enumerator implementations that ship with
// the orchestrator. External strategies register against the domain registry
// the same way these do.
package enumeration

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	domain "github.com/sitescout/sitescout/internal/domain/enumeration"
	"github.com/sitescout/sitescout/internal/domain/scanning"
	"github.com/sitescout/sitescout/internal/infra/browser"
	"github.com/sitescout/sitescout/pkg/common/logger"
)

var _ domain.Enumerator = (*WebScanner)(nil)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	urlPattern   = regexp.MustCompile(`https?://[^\s"'<>()]+`)
)

// WebScanner enumerates a target by rendering its landing page in a pooled
// browser instance and harvesting emails, links, script paths, and
// subdomains from the rendered document. It is the reference enumerator
// exercising the browser pool; strategies that talk to external services
// register alongside it.
type WebScanner struct {
	log *logger.Logger
}

// NewWebScanner returns the built-in page-rendering enumerator.
func NewWebScanner(log *logger.Logger) *WebScanner {
	return &WebScanner{log: log.With("component", "web_scanner")}
}

// Descriptor returns the registry descriptor for this enumerator.
func (w *WebScanner) Descriptor() domain.Descriptor {
	return domain.NewDescriptor(w.Name(), nil,
		"renders the target's landing page and extracts emails, links, script paths, and subdomains", true)
}

// Name returns the enumerator's registry name.
func (w *WebScanner) Name() string { return "web_scanner" }

// RequiredConfig returns the option keys this enumerator needs. The page
// renderer needs none.
func (w *WebScanner) RequiredConfig() []string { return nil }

// Run renders the target's landing page and extracts findings from the
// resulting document. It requires a browser instance on the context,
// attached by the scheduler when the task's pool slot is acquired.
func (w *WebScanner) Run(ctx context.Context, target string, config map[string]string) (scanning.EnumerationResult, error) {
	started := time.Now()

	inst, ok := browser.InstanceFromContext(ctx)
	if !ok {
		return scanning.EnumerationResult{}, fmt.Errorf("no browser instance on context")
	}

	pageURL := target
	if !strings.Contains(pageURL, "://") {
		pageURL = "https://" + target
	}

	// Bound the page visit by both the task context and the instance's own
	// page budget.
	pageCtx, cancel := context.WithTimeout(inst.Context(), inst.PageTimeout())
	defer cancel()

	var title, html string
	err := chromedp.Run(pageCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &html),
	)
	if ctx.Err() != nil {
		return scanning.EnumerationResult{}, ctx.Err()
	}
	if err != nil {
		inst.MarkFailed()
		return scanning.EnumerationResult{}, fmt.Errorf("rendering %s: %w", pageURL, err)
	}

	fields, errs := extractFindings(target, html)
	w.log.Debug(ctx, "Page rendered", "target", target, "title", title, "fields", len(fields))

	scalars := map[string]string{}
	if title != "" {
		scalars["page_title"] = title
	}

	return scanning.NewEnumerationResult(
		w.Name(), target, fields, scalars, errs, time.Since(started)), nil
}

// extractFindings pulls the result fields out of a rendered document.
func extractFindings(target, html string) (map[string][]string, []string) {
	fields := make(map[string][]string)
	var errs []string

	// Hostnames are case-insensitive; fold the target once so comparisons
	// below work regardless of how the request spelled it.
	target = strings.ToLower(target)

	if emails := emailPattern.FindAllString(html, -1); len(emails) > 0 {
		fields[scanning.FieldEmails] = emails
	}

	urls := urlPattern.FindAllString(html, -1)
	if len(urls) > 0 {
		fields[scanning.FieldURLs] = urls
	}

	var jsPaths, subdomains []string
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil {
			errs = append(errs, fmt.Sprintf("unparseable url %q: %v", raw, err))
			continue
		}
		if strings.HasSuffix(u.Path, ".js") {
			jsPaths = append(jsPaths, u.Path)
		}
		host := strings.ToLower(u.Hostname())
		if host != target && strings.HasSuffix(host, "."+target) {
			subdomains = append(subdomains, host)
		}
	}
	if len(jsPaths) > 0 {
		fields[scanning.FieldJSPaths] = jsPaths
	}
	if len(subdomains) > 0 {
		fields[scanning.FieldSubdomains] = subdomains
	}

	return fields, errs
}
