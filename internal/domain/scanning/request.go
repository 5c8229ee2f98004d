package scanning

import (
	"time"
)

// ScanRequest is the immutable submission that creates a scan. Once accepted
// by the scheduler it is never mutated; accessors return copies of the
// reference-typed fields.
type ScanRequest struct {
	target      string
	enumerators []string
	options     map[string]string
	deadline    time.Duration
}

// RequestOption defines functional options for configuring a ScanRequest.
type RequestOption func(*ScanRequest)

// WithEnumerators limits the scan to the named enumerators. An empty set
// means "all registered".
func WithEnumerators(names ...string) RequestOption {
	return func(r *ScanRequest) { r.enumerators = append([]string(nil), names...) }
}

// WithOptions attaches per-request option values (API keys, feature toggles)
// consumed by enumerators.
func WithOptions(options map[string]string) RequestOption {
	return func(r *ScanRequest) {
		r.options = make(map[string]string, len(options))
		for k, v := range options {
			r.options[k] = v
		}
	}
}

// WithDeadline bounds the whole scan. When it elapses, non-terminal tasks
// are cancelled and the scan finalizes with whatever results exist.
func WithDeadline(d time.Duration) RequestOption {
	return func(r *ScanRequest) { r.deadline = d }
}

// NewScanRequest creates a request for the given target.
func NewScanRequest(target string, opts ...RequestOption) ScanRequest {
	r := ScanRequest{target: target}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// Target returns the target identifier to scan.
func (r ScanRequest) Target() string { return r.target }

// Enumerators returns the requested enumerator names; empty means all.
func (r ScanRequest) Enumerators() []string {
	return append([]string(nil), r.enumerators...)
}

// Options returns a copy of the per-request option mapping.
func (r ScanRequest) Options() map[string]string {
	out := make(map[string]string, len(r.options))
	for k, v := range r.options {
		out[k] = v
	}
	return out
}

// Deadline returns the scan-level deadline, zero when unset.
func (r ScanRequest) Deadline() time.Duration { return r.deadline }
