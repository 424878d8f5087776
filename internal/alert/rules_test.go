package alert

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialeye/internal/logging"
	"github.com/socialeye/internal/models"
)

const yamlRules = `
rules:
  - id: latency
    name: API latency
    enabled: true
    severity: high
    throttle_minutes: 30
    condition:
      kind: threshold
      metric: response_time
      operator: gt
      value: 2000
      window_minutes: 10
      aggregation: avg
    channels:
      - kind: webhook
        enabled: true
        config:
          url: http://hooks.local/alert
          headers:
            X-Tenant: acme
`

func TestParseRules_YAML(t *testing.T) {
	rules, err := ParseRules([]byte(yamlRules))
	require.NoError(t, err)
	require.Len(t, rules, 1)

	r := rules[0]
	assert.Equal(t, "latency", r.ID)
	assert.Equal(t, models.SeverityHigh, r.Severity)
	assert.Equal(t, 30, r.ThrottleMinutes)
	assert.Equal(t, models.Condition{
		Kind: models.ConditionThreshold, Metric: "response_time", Operator: models.OperatorGT,
		Value: 2000, WindowMinutes: 10, Aggregation: models.AggregationAvg,
	}, r.Condition)
	require.Len(t, r.Channels, 1)
	assert.Equal(t, "http://hooks.local/alert", r.Channels[0].Config["url"])
}

func TestParseRules_JSONList(t *testing.T) {
	data := `[{"id":"e","name":"errors","enabled":true,"severity":"critical",
	  "condition":{"kind":"error_rate","metric":"api","operator":"gt","value":5,"window_minutes":5}}]`
	rules, err := ParseRules([]byte(data))
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, models.ConditionErrorRate, rules[0].Condition.Kind)
	assert.Equal(t, models.AggregationSum, rules[0].Condition.EffectiveAggregation())
}

func TestParseRules_Rejects(t *testing.T) {
	cases := map[string]string{
		"zero window":  `[{"id":"a","name":"a","severity":"low","condition":{"kind":"threshold","metric":"m","operator":"gt","window_minutes":0}}]`,
		"bad operator": `[{"id":"a","name":"a","severity":"low","condition":{"kind":"threshold","metric":"m","operator":"approx","window_minutes":1}}]`,
		"duplicate id": `[{"id":"a","name":"a","severity":"low","condition":{"kind":"threshold","metric":"m","operator":"gt","window_minutes":1}},
		                  {"id":"a","name":"b","severity":"low","condition":{"kind":"threshold","metric":"m","operator":"gt","window_minutes":1}}]`,
		"malformed": `rules: [`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRules([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestValidateRule_CollectsProblems(t *testing.T) {
	err := ValidateRule(&models.AlertRule{
		ThrottleMinutes: -1,
		Channels:        []models.AlertChannel{{Kind: "pager"}},
	})
	require.ErrorIs(t, err, ErrInvalidRule)
	for _, want := range []string{"id is required", "window_minutes", "throttle_minutes", "pager", "severity"} {
		assert.ErrorContains(t, err, want)
	}
}

func TestDefaultRulesAreValid(t *testing.T) {
	for _, r := range DefaultRules() {
		assert.NoError(t, ValidateRule(r), r.ID)
	}
}

func TestExportRuleFile_LoadsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, ExportRuleFile(path, DefaultRules()))

	rules, err := LoadRuleFile(path)
	require.NoError(t, err)
	require.Len(t, rules, len(DefaultRules()))
	assert.Equal(t, DefaultRules()[0].Condition, rules[0].Condition)
}

func TestWatchRuleFile_ReloadsValidChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlRules), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan []*models.AlertRule, 4)
	errc := make(chan error, 1)
	go func() {
		errc <- WatchRuleFile(ctx, path, logging.Discard(), func(r []*models.AlertRule) { changes <- r })
	}()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("rules: ["), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte(yamlRules), 0o644))
	require.NoError(t, ExportRuleFile(path, DefaultRules()))

	// a truncate-then-write save can surface an empty intermediate reload
	deadline := time.After(5 * time.Second)
	for reloaded := false; !reloaded; {
		select {
		case got := <-changes:
			reloaded = len(got) == len(DefaultRules())
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}

	cancel()
	assert.NoError(t, <-errc)
}
