package scanning

import (
	"sort"
	"time"
)

// EnumerationResult carries the partial findings of one enumerator run
// against one target. Set-valued findings live in Fields; single-valued
// findings that may disagree between enumerators (a detected framework
// version, registrar data) live in Scalars. Errors lists recoverable
// per-field failures the enumerator chose not to fail the whole run over.
type EnumerationResult struct {
	enumerator    string
	target        string
	timestamp     time.Time
	fields        map[string][]string
	scalars       map[string]string
	errors        []string
	executionTime time.Duration
}

// NewEnumerationResult creates a result for a completed enumerator run.
func NewEnumerationResult(
	enumerator string,
	target string,
	fields map[string][]string,
	scalars map[string]string,
	errs []string,
	executionTime time.Duration,
) EnumerationResult {
	return EnumerationResult{
		enumerator:    enumerator,
		target:        target,
		timestamp:     time.Now(),
		fields:        fields,
		scalars:       scalars,
		errors:        errs,
		executionTime: executionTime,
	}
}

// ReconstructEnumerationResult creates an EnumerationResult from persisted
// data. This should only be used by repositories when loading from storage.
func ReconstructEnumerationResult(
	enumerator string,
	target string,
	timestamp time.Time,
	fields map[string][]string,
	scalars map[string]string,
	errs []string,
	executionTime time.Duration,
) EnumerationResult {
	return EnumerationResult{
		enumerator:    enumerator,
		target:        target,
		timestamp:     timestamp,
		fields:        fields,
		scalars:       scalars,
		errors:        errs,
		executionTime: executionTime,
	}
}

// Enumerator returns the name of the enumerator that produced this result.
func (r EnumerationResult) Enumerator() string { return r.enumerator }

// Target returns the target the enumerator ran against.
func (r EnumerationResult) Target() string { return r.target }

// Timestamp returns when this result was produced.
func (r EnumerationResult) Timestamp() time.Time { return r.timestamp }

// Fields returns the set-valued findings keyed by field name.
func (r EnumerationResult) Fields() map[string][]string { return r.fields }

// Scalars returns the single-valued findings keyed by field name.
func (r EnumerationResult) Scalars() map[string]string { return r.scalars }

// Errors returns recoverable per-field failures recorded during the run.
func (r EnumerationResult) Errors() []string { return r.errors }

// ExecutionTime returns how long the enumerator ran.
func (r EnumerationResult) ExecutionTime() time.Duration { return r.executionTime }

// ScalarFinding records one enumerator's report of a single-valued field.
// Conflicting reports are retained side by side rather than overwritten, so
// no information is lost when enumerators disagree.
type ScalarFinding struct {
	Field      string
	Value      string
	ReportedBy string
}

// ScanResult is the target-level aggregate built by merging enumeration
// results one at a time. Set-valued fields are deduplicated after per-field
// normalization; the original per-enumerator results are kept for provenance.
//
// ScanResult is not safe for concurrent mutation. The correlator applies
// merges serially under a single-writer discipline; readers get defensive
// copies via Snapshot.
type ScanResult struct {
	target  string
	fields  map[string]map[string]struct{}
	scalars []ScalarFinding
	sources []EnumerationResult
}

// NewScanResult creates an empty aggregate for the given target.
func NewScanResult(target string) *ScanResult {
	return &ScanResult{
		target: target,
		fields: make(map[string]map[string]struct{}),
	}
}

// Target returns the target this aggregate describes.
func (sr *ScanResult) Target() string { return sr.target }

// Merge folds one enumeration result into the aggregate. Each set-valued
// field is unioned in after normalization, so merge order does not affect
// the final sets. Scalar findings are appended with provenance; their order
// follows merge order, which is non-deterministic across runs when tasks
// complete concurrently.
func (sr *ScanResult) Merge(result EnumerationResult) {
	for field, values := range result.Fields() {
		set, ok := sr.fields[field]
		if !ok {
			set = make(map[string]struct{}, len(values))
			sr.fields[field] = set
		}
		for _, v := range values {
			if norm := normalizeFieldValue(field, v); norm != "" {
				set[norm] = struct{}{}
			}
		}
	}

	for field, value := range result.Scalars() {
		sr.scalars = append(sr.scalars, ScalarFinding{
			Field:      field,
			Value:      value,
			ReportedBy: result.Enumerator(),
		})
	}

	sr.sources = append(sr.sources, result)
}

// Field returns the deduplicated, sorted values of one named field.
func (sr *ScanResult) Field(name string) []string {
	set, ok := sr.fields[name]
	if !ok {
		return nil
	}
	values := make([]string, 0, len(set))
	for v := range set {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

// Fields returns all deduplicated fields, each sorted for stable reads.
func (sr *ScanResult) Fields() map[string][]string {
	out := make(map[string][]string, len(sr.fields))
	for name := range sr.fields {
		out[name] = sr.Field(name)
	}
	return out
}

// Scalars returns the provenance-tagged scalar findings in merge order.
func (sr *ScanResult) Scalars() []ScalarFinding {
	out := make([]ScalarFinding, len(sr.scalars))
	copy(out, sr.scalars)
	return out
}

// Sources returns the per-enumerator results merged so far, in merge order.
func (sr *ScanResult) Sources() []EnumerationResult {
	out := make([]EnumerationResult, len(sr.sources))
	copy(out, sr.sources)
	return out
}

// Snapshot returns a deep copy safe to hand to readers while merging
// continues on the original.
func (sr *ScanResult) Snapshot() *ScanResult {
	cp := NewScanResult(sr.target)
	for name, set := range sr.fields {
		dst := make(map[string]struct{}, len(set))
		for v := range set {
			dst[v] = struct{}{}
		}
		cp.fields[name] = dst
	}
	cp.scalars = sr.Scalars()
	cp.sources = sr.Sources()
	return cp
}
