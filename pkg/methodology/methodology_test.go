package methodology

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sanad-Labs/sanad/pkg/tiers"
)

func TestDefaultRegistry(t *testing.T) {
	r := Default()

	assert.Equal(t, "builtin", r.Name())
	assert.Equal(t, "1.0.0", r.Version())
	assert.Equal(t, "0.0500", r.DeviationThreshold().Score())
	assert.Equal(t, 365, r.StalenessHorizonDays())
	assert.Empty(t, r.Predicates())

	w, ok := r.TierWeight(tiers.TierPrimaryAudited)
	require.True(t, ok)
	assert.Equal(t, "1.0000", w.Score())

	_, ok = r.TierWeight(tiers.TierID("MADE_UP"))
	assert.False(t, ok)

	ceiling, err := r.TierCeiling(tiers.TierManagementRep)
	require.NoError(t, err)
	assert.Equal(t, "C", string(ceiling))
}

func TestStaleBefore(t *testing.T) {
	r := Default()

	cutoff := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, cutoff.AddDate(0, 0, -365), r.StaleBefore(cutoff))

	assert.True(t, r.StaleBefore(time.Time{}).IsZero(), "zero cutoff disables the staleness check")
}

const validPack = `
methodology:
  name: acme/deal-grading
  version: "1.2.0"
tiers:
  MANAGEMENT_REP:
    weight: "0.45"
thresholds:
  deviation: "0.08"
  staleness_days: 270
predicates:
  - rule: ic_sole_management_rep
    expr: usage.ic_bound && usage.sole_support && tier.id == "MANAGEMENT_REP"
`

func TestParseValidPack(t *testing.T) {
	r, err := Parse([]byte(validPack))
	require.NoError(t, err)

	assert.Equal(t, "acme/deal-grading", r.Name())
	assert.Equal(t, "1.2.0", r.Version())
	assert.Equal(t, "0.0800", r.DeviationThreshold().Score())
	assert.Equal(t, 270, r.StalenessHorizonDays())

	w, ok := r.TierWeight(tiers.TierManagementRep)
	require.True(t, ok)
	assert.Equal(t, "0.4500", w.Score())

	// Untouched tiers keep their defaults.
	w, ok = r.TierWeight(tiers.TierSecondaryCorroborated)
	require.True(t, ok)
	assert.Equal(t, "0.7000", w.Score())

	preds := r.Predicates()
	require.Len(t, preds, 1)
	assert.Equal(t, "ic_sole_management_rep", preds[0].Rule)

	usageVars, tierVars := Bindings(tiers.UsageContext{
		ICBound:     true,
		SoleSupport: true,
	}, tiers.Get(tiers.TierManagementRep))
	fired, err := preds[0].Eval(usageVars, tierVars)
	require.NoError(t, err)
	assert.True(t, fired)

	usageVars, tierVars = Bindings(tiers.UsageContext{
		ICBound:     true,
		SoleSupport: true,
	}, tiers.Get(tiers.TierPrimaryAudited))
	fired, err = preds[0].Eval(usageVars, tierVars)
	require.NoError(t, err)
	assert.False(t, fired)
}

func TestParseSchemaRejections(t *testing.T) {
	tests := []struct {
		name string
		pack string
	}{
		{
			name: "missing methodology block",
			pack: `thresholds: {deviation: "0.08"}`,
		},
		{
			name: "bad pack name",
			pack: "methodology: {name: NotAPackName, version: \"1.0.0\"}",
		},
		{
			name: "bad version string",
			pack: "methodology: {name: acme/pack, version: \"1.0\"}",
		},
		{
			name: "unknown tier key",
			pack: "methodology: {name: acme/pack, version: \"1.0.0\"}\ntiers: {PRIMARY_GUESSWORK: {weight: \"0.10\"}}",
		},
		{
			name: "unknown top-level key",
			pack: "methodology: {name: acme/pack, version: \"1.0.0\"}\nextras: {}",
		},
		{
			name: "weight not scale two",
			pack: "methodology: {name: acme/pack, version: \"1.0.0\"}\ntiers: {MANAGEMENT_REP: {weight: \"0.5\"}}",
		},
		{
			name: "predicate missing expr",
			pack: "methodology: {name: acme/pack, version: \"1.0.0\"}\npredicates: [{rule: some_rule}]",
		},
		{
			name: "predicate rule not snake case",
			pack: "methodology: {name: acme/pack, version: \"1.0.0\"}\npredicates: [{rule: SomeRule, expr: \"usage.ic_bound == true\"}]",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.pack))
			require.Error(t, err)
			var perr *PackLoadError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, "schema validation", perr.Step)
			assert.True(t, perr.FailClosed)
		})
	}
}

func TestParseVersionGate(t *testing.T) {
	pack := "methodology: {name: acme/pack, version: \"2.0.0\"}"
	_, err := Parse([]byte(pack))
	require.Error(t, err)
	var perr *PackLoadError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "version compatibility", perr.Step)
	assert.Contains(t, perr.Reason, "line 2")
}

func TestParseTierWeightBounds(t *testing.T) {
	tests := []struct {
		name string
		pack string
	}{
		{
			name: "weight above one",
			pack: "methodology: {name: acme/pack, version: \"1.0.0\"}\ntiers: {PRIMARY_AUDITED: {weight: \"1.10\"}}",
		},
		{
			name: "zero weight",
			pack: "methodology: {name: acme/pack, version: \"1.0.0\"}\ntiers: {RUMOR_INFERENCE: {weight: \"0.00\"}}",
		},
		{
			name: "order violated",
			pack: "methodology: {name: acme/pack, version: \"1.0.0\"}\ntiers: {MANAGEMENT_REP: {weight: \"0.90\"}}",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.pack))
			require.Error(t, err)
			var perr *PackLoadError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, "tier weight bounds", perr.Step)
		})
	}
}

func TestParseThresholdBounds(t *testing.T) {
	tests := []struct {
		name string
		pack string
	}{
		{
			name: "deviation too large",
			pack: "methodology: {name: acme/pack, version: \"1.0.0\"}\nthresholds: {deviation: \"0.60\"}",
		},
		{
			name: "staleness too short",
			pack: "methodology: {name: acme/pack, version: \"1.0.0\"}\nthresholds: {staleness_days: 10}",
		},
		{
			name: "staleness too long",
			pack: "methodology: {name: acme/pack, version: \"1.0.0\"}\nthresholds: {staleness_days: 4000}",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.pack))
			require.Error(t, err)
			var perr *PackLoadError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, "threshold bounds", perr.Step)
		})
	}
}

func TestParsePredicateRejections(t *testing.T) {
	tests := []struct {
		name string
		pack string
	}{
		{
			name: "float literal",
			pack: "methodology: {name: acme/pack, version: \"1.0.0\"}\npredicates: [{rule: some_rule, expr: \"0.5 < 1.0\"}]",
		},
		{
			name: "clock read",
			pack: "methodology: {name: acme/pack, version: \"1.0.0\"}\npredicates: [{rule: some_rule, expr: \"now() == now()\"}]",
		},
		{
			name: "non-boolean",
			pack: "methodology: {name: acme/pack, version: \"1.0.0\"}\npredicates: [{rule: some_rule, expr: \"1 + 2\"}]",
		},
		{
			name: "duplicate rule",
			pack: "methodology: {name: acme/pack, version: \"1.0.0\"}\npredicates: [{rule: some_rule, expr: \"usage.ic_bound == true\"}, {rule: some_rule, expr: \"usage.sole_support == true\"}]",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.pack))
			require.Error(t, err)
			var perr *PackLoadError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, "predicate compile", perr.Step)
		})
	}
}

func TestPredicatesSortedByRule(t *testing.T) {
	pack := "methodology: {name: acme/pack, version: \"1.0.0\"}\n" +
		"predicates:\n" +
		"  - {rule: zebra_rule, expr: \"usage.ic_bound == true\"}\n" +
		"  - {rule: alpha_rule, expr: \"usage.sole_support == true\"}\n"
	r, err := Parse([]byte(pack))
	require.NoError(t, err)

	preds := r.Predicates()
	require.Len(t, preds, 2)
	assert.Equal(t, "alpha_rule", preds[0].Rule)
	assert.Equal(t, "zebra_rule", preds[1].Rule)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pack.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validPack), 0o600))

	r, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", r.Version())

	_, err = LoadFile(filepath.Join(dir, "absent.yaml"))
	require.Error(t, err)
	var perr *PackLoadError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "read", perr.Step)
}
