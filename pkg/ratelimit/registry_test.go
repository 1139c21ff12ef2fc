package ratelimit

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	reg := DefaultRegistry()

	login, ok := reg.Rule(DimensionIP, CategoryLogin)
	require.True(t, ok)
	assert.Equal(t, Rule{Limit: 5, Window: 5 * time.Minute, Penalty: 15 * time.Minute}, login)

	system, ok := reg.Rule(DimensionGlobal, CategorySystem)
	require.True(t, ok)
	assert.Equal(t, 10000, system.Limit)
	assert.Equal(t, time.Minute, system.Window)

	export, ok := reg.Rule(DimensionEndpoint, CategoryExport)
	require.True(t, ok)
	assert.Equal(t, 10, export.Limit)
	assert.Equal(t, 10*time.Minute, export.Window)

	_, ok = reg.Rule(DimensionIP, CategoryExport)
	assert.False(t, ok)
}

func TestNewRegistry_Validation(t *testing.T) {
	base := DefaultRuleSet()

	cases := []struct {
		name string
		rule Rule
	}{
		{"zero limit", Rule{Limit: 0, Window: time.Minute}},
		{"negative limit", Rule{Limit: -1, Window: time.Minute}},
		{"zero window", Rule{Limit: 1}},
		{"negative penalty", Rule{Limit: 1, Window: time.Minute, Penalty: -time.Second}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			set := base.Merge(RuleSet{Rules: map[Dimension]map[Category]Rule{
				DimensionIP: {CategoryUpload: tc.rule},
			}})
			_, err := NewRegistry(set)
			require.ErrorIs(t, err, ErrInvalidRule)
			assert.Contains(t, err.Error(), "per_ip/upload")
		})
	}

	t.Run("invalid role override", func(t *testing.T) {
		set := base.Merge(RuleSet{Roles: map[string]Rule{"evaluator": {Limit: 10}}})
		_, err := NewRegistry(set)
		require.ErrorIs(t, err, ErrInvalidRule)
	})

	t.Run("unknown dimension", func(t *testing.T) {
		set := base.Merge(RuleSet{Rules: map[Dimension]map[Category]Rule{
			"per_planet": {CategoryAPI: {Limit: 1, Window: time.Second}},
		}})
		_, err := NewRegistry(set)
		require.ErrorIs(t, err, ErrInvalidRule)
	})

	t.Run("missing fallback rules", func(t *testing.T) {
		_, err := NewRegistry(RuleSet{Rules: map[Dimension]map[Category]Rule{
			DimensionIP: {CategoryAPI: {Limit: 1, Window: time.Second}},
		}})
		require.ErrorIs(t, err, ErrInvalidRule)
		assert.Contains(t, err.Error(), "global/system")
	})
}

func TestLoadRuleSet(t *testing.T) {
	doc := `
rules:
  per_ip:
    login:
      limit: 3
      window: 2m
      penalty: 30m
  per_endpoint:
    export:
      limit: 2
      window: 1h
      burst_limit: 4
roles:
  reviewer:
    limit: 50
    window: 1m
`
	set, err := LoadRuleSet(strings.NewReader(doc))
	require.NoError(t, err)

	reg, err := NewRegistry(DefaultRuleSet().Merge(set))
	require.NoError(t, err)

	login, _ := reg.Rule(DimensionIP, CategoryLogin)
	assert.Equal(t, Rule{Limit: 3, Window: 2 * time.Minute, Penalty: 30 * time.Minute}, login)

	export, _ := reg.Rule(DimensionEndpoint, CategoryExport)
	assert.Equal(t, 4, export.BurstLimit)
	assert.Equal(t, time.Hour, export.Window)

	// untouched defaults survive the merge
	api, ok := reg.Rule(DimensionIP, CategoryAPI)
	require.True(t, ok)
	assert.Equal(t, 60, api.Limit)

	reviewer, ok := reg.UserRule("reviewer")
	require.True(t, ok)
	assert.Equal(t, 50, reviewer.Limit)

	t.Run("empty document", func(t *testing.T) {
		set, err := LoadRuleSet(strings.NewReader(""))
		require.NoError(t, err)
		assert.Empty(t, set.Rules)
	})

	t.Run("malformed document", func(t *testing.T) {
		_, err := LoadRuleSet(strings.NewReader("rules: [1, 2"))
		require.ErrorIs(t, err, ErrInvalidRule)
	})
}

func TestRegistry_UserRule(t *testing.T) {
	reg := DefaultRegistry()

	general, ok := reg.UserRule("")
	require.True(t, ok)
	assert.Equal(t, 100, general.Limit)

	evaluator, _ := reg.UserRule("evaluator")
	admin, _ := reg.UserRule("admin")
	assert.Equal(t, 200, evaluator.Limit)
	assert.Equal(t, 300, admin.Limit)
	assert.Equal(t, general.Window, evaluator.Window)

	unknown, _ := reg.UserRule("guest")
	assert.Equal(t, general, unknown)
}

func TestRegistry_Retention(t *testing.T) {
	reg := DefaultRegistry()
	// login penalty (15m) beats the widest window (10m export + 1m buffer)
	assert.Equal(t, 15*time.Minute, reg.Retention())
}

func TestRuleSet_MergeDoesNotMutate(t *testing.T) {
	base := DefaultRuleSet()
	_ = base.Merge(RuleSet{Rules: map[Dimension]map[Category]Rule{
		DimensionIP: {CategoryLogin: {Limit: 1, Window: time.Second}},
	}})
	assert.Equal(t, 5, base.Rules[DimensionIP][CategoryLogin].Limit)
}
