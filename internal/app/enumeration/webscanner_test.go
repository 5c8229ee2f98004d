package enumeration

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitescout/sitescout/internal/domain/scanning"
	"github.com/sitescout/sitescout/pkg/common/logger"
)

func testLogger() *logger.Logger {
	return logger.New(io.Discard, logger.LevelError, "test", nil)
}

func TestWebScannerDescriptor(t *testing.T) {
	t.Parallel()

	w := NewWebScanner(testLogger())
	d := w.Descriptor()

	assert.Equal(t, "web_scanner", d.Name())
	assert.Empty(t, d.RequiredConfig())
	assert.True(t, d.Enabled())
}

func TestRunRequiresBrowserInstance(t *testing.T) {
	t.Parallel()

	w := NewWebScanner(testLogger())
	_, err := w.Run(context.Background(), "example.com", nil)
	assert.ErrorContains(t, err, "no browser instance")
}

func TestExtractFindings(t *testing.T) {
	t.Parallel()

	html := `<html><body>
		<a href="mailto:info@example.com">info@example.com</a>
		<a href="https://api.example.com/v1/users">api</a>
		<script src="https://cdn.example.com/assets/app.js"></script>
		<a href="https://other.example.net/page">elsewhere</a>
	</body></html>`

	fields, errs := extractFindings("example.com", html)
	assert.Empty(t, errs)

	assert.Contains(t, fields[scanning.FieldEmails], "info@example.com")
	assert.Contains(t, fields[scanning.FieldURLs], "https://api.example.com/v1/users")
	assert.Equal(t, []string{"/assets/app.js"}, fields[scanning.FieldJSPaths])

	// Hosts under the target count as subdomains; unrelated hosts do not.
	assert.ElementsMatch(t, []string{"api.example.com", "cdn.example.com"}, fields[scanning.FieldSubdomains])
}

func TestExtractFindingsEmptyDocument(t *testing.T) {
	t.Parallel()

	fields, errs := extractFindings("example.com", "<html></html>")
	assert.Empty(t, fields)
	assert.Empty(t, errs)
}

func TestExtractFindingsFoldsTargetCase(t *testing.T) {
	t.Parallel()

	html := `<html><body>
		<a href="https://api.example.com/v1">api</a>
		<a href="https://CDN.Example.COM/assets/app.js">cdn</a>
		<a href="https://example.com/about">about</a>
	</body></html>`

	fields, errs := extractFindings("Example.COM", html)
	assert.Empty(t, errs)
	assert.ElementsMatch(t, []string{"api.example.com", "cdn.example.com"}, fields[scanning.FieldSubdomains])
}

func TestExtractFindingsIgnoresTargetItself(t *testing.T) {
	t.Parallel()

	html := `<a href="https://example.com/about">about</a>`
	fields, _ := extractFindings("example.com", html)

	require.Contains(t, fields, scanning.FieldURLs)
	assert.NotContains(t, fields, scanning.FieldSubdomains)
}
