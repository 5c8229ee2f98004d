package scanning

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScanStatusTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		from    ScanStatus
		to      ScanStatus
		allowed bool
	}{
		{"pending to running", ScanStatusPending, ScanStatusRunning, true},
		{"pending to cancelled", ScanStatusPending, ScanStatusCancelled, true},
		{"pending to completed", ScanStatusPending, ScanStatusCompleted, false},
		{"pending to failed", ScanStatusPending, ScanStatusFailed, false},
		{"running to completed", ScanStatusRunning, ScanStatusCompleted, true},
		{"running to failed", ScanStatusRunning, ScanStatusFailed, true},
		{"running to cancelled", ScanStatusRunning, ScanStatusCancelled, true},
		{"running to pending", ScanStatusRunning, ScanStatusPending, false},
		{"completed is terminal", ScanStatusCompleted, ScanStatusRunning, false},
		{"failed is terminal", ScanStatusFailed, ScanStatusRunning, false},
		{"cancelled is terminal", ScanStatusCancelled, ScanStatusRunning, false},
		{"cancelled cannot complete", ScanStatusCancelled, ScanStatusCompleted, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.from.validateTransition(tt.to)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestScanStatusIsTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, ScanStatusPending.IsTerminal())
	assert.False(t, ScanStatusRunning.IsTerminal())
	assert.True(t, ScanStatusCompleted.IsTerminal())
	assert.True(t, ScanStatusFailed.IsTerminal())
	assert.True(t, ScanStatusCancelled.IsTerminal())
}

func TestParseScanStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ScanStatusRunning, ParseScanStatus("RUNNING"))
	assert.Equal(t, ScanStatusUnspecified, ParseScanStatus("bogus"))
}
