package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ValidSet(t *testing.T) {
	set, err := Load([]byte(`
rules:
  - id: overclaim
    pattern: "(?i)task fully completed"
    severity: critical
    trigger_action: block
    description: Claims completion without evidence
  - id: missing-evidence
    pattern: "(?i)should work"
    severity: medium
    trigger_action: warn
`))
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())
	assert.Equal(t, "overclaim", set.Rules()[0].ID)
	assert.Equal(t, SeverityCritical, set.Rules()[0].Severity)
	assert.Equal(t, ActionBlock, set.Rules()[0].Action)
}

func TestLoad_RejectsMalformedEntries(t *testing.T) {
	cases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "unknown severity",
			yaml: `
rules:
  - id: bad-severity
    pattern: "x"
    severity: catastrophic
    trigger_action: log
`,
			wantErr: "bad-severity",
		},
		{
			name: "unknown trigger action",
			yaml: `
rules:
  - id: bad-action
    pattern: "x"
    severity: low
    trigger_action: explode
`,
			wantErr: "bad-action",
		},
		{
			name: "invalid pattern",
			yaml: `
rules:
  - id: bad-pattern
    pattern: "("
    severity: low
    trigger_action: log
`,
			wantErr: "bad-pattern",
		},
		{
			name: "duplicate id",
			yaml: `
rules:
  - id: dup
    pattern: "a"
    severity: low
    trigger_action: log
  - id: dup
    pattern: "b"
    severity: low
    trigger_action: log
`,
			wantErr: "dup",
		},
		{
			name: "missing id",
			yaml: `
rules:
  - pattern: "a"
    severity: low
    trigger_action: log
`,
			wantErr: "missing id",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load([]byte(tc.yaml))
			require.Error(t, err)
			// The failing rule must be identifiable from the error.
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestParseSeverity(t *testing.T) {
	for _, raw := range []string{"info", "low", "medium", "high", "critical"} {
		s, err := ParseSeverity(raw)
		require.NoError(t, err)
		assert.True(t, s.IsValid())
	}
	_, err := ParseSeverity("")
	assert.Error(t, err)
}

func TestSeverityRankOrdering(t *testing.T) {
	assert.Greater(t, SeverityCritical.Rank(), SeverityHigh.Rank())
	assert.Greater(t, SeverityHigh.Rank(), SeverityMedium.Rank())
	assert.Greater(t, SeverityMedium.Rank(), SeverityLow.Rank())
	assert.Greater(t, SeverityLow.Rank(), SeverityInfo.Rank())
}
