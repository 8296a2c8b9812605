package retention

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPolicies(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "valid set",
			yaml: `policies:
  - name: working
    retention_days: 7
    min_salience_threshold: 0.5
    max_items: 100
  - name: pinned
    retention_days: 0
    min_salience_threshold: 0
`,
		},
		{
			name: "missing name",
			yaml: `policies:
  - retention_days: 7
    min_salience_threshold: 0.5
`,
			wantErr: "missing name",
		},
		{
			name: "duplicate name",
			yaml: `policies:
  - name: working
    retention_days: 7
  - name: working
    retention_days: 30
`,
			wantErr: `policy "working": duplicate name`,
		},
		{
			name: "salience out of range",
			yaml: `policies:
  - name: working
    retention_days: 7
    min_salience_threshold: 1.5
`,
			wantErr: `policy "working": min_salience_threshold`,
		},
		{
			name:    "empty set",
			yaml:    `policies: []`,
			wantErr: "no retention policies defined",
		},
		{
			name:    "malformed yaml",
			yaml:    `policies: [`,
			wantErr: "parse policies",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := LoadPolicies([]byte(tt.yaml))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{"working", "pinned"}, set.Names())

			working, ok := set.Get("working")
			require.True(t, ok)
			assert.Equal(t, 7, working.RetentionDays)
			assert.Equal(t, 0.5, working.MinSalience)
			assert.Equal(t, 100, working.MaxItems)
		})
	}
}

func TestPolicySweepEligible(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	policy := Policy{Name: "working", RetentionDays: 7, MinSalience: 0.5}

	oldStamp := now.AddDate(0, 0, -8)
	freshStamp := now.AddDate(0, 0, -1)

	assert.True(t, policy.SweepEligible(Entry{Timestamp: oldStamp, Salience: 0.2}, now))

	// Either condition alone is not enough.
	assert.False(t, policy.SweepEligible(Entry{Timestamp: oldStamp, Salience: 0.9}, now))
	assert.False(t, policy.SweepEligible(Entry{Timestamp: freshStamp, Salience: 0.2}, now))

	pinned := Policy{Name: "pinned", RetentionDays: 0, MinSalience: 0.9}
	assert.True(t, pinned.NeverExpires())
	assert.False(t, pinned.SweepEligible(Entry{Timestamp: oldStamp, Salience: 0.0}, now))
}
