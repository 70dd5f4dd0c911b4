// File: internal/reasoning/risk_test.go
package reasoning

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/dowser-cli/api/schemas"
)

func TestUpdateRiskScore(t *testing.T) {
	t.Run("clean execution decays risk", func(t *testing.T) {
		got := UpdateRiskScore(0.5, false, schemas.SeverityLow)
		assert.Less(t, got, 0.5)
		assert.GreaterOrEqual(t, got, 0.0)
	})

	t.Run("anomaly raises risk by severity", func(t *testing.T) {
		low := UpdateRiskScore(0.5, true, schemas.SeverityLow)
		medium := UpdateRiskScore(0.5, true, schemas.SeverityMedium)
		high := UpdateRiskScore(0.5, true, schemas.SeverityHigh)

		assert.Greater(t, low, 0.5)
		assert.Greater(t, medium, low)
		assert.Greater(t, high, medium)
	})

	t.Run("result stays clamped", func(t *testing.T) {
		got := 0.99
		for i := 0; i < 100; i++ {
			got = UpdateRiskScore(got, true, schemas.SeverityHigh)
		}
		assert.LessOrEqual(t, got, 1.0)

		got = 0.01
		for i := 0; i < 100; i++ {
			got = UpdateRiskScore(got, false, schemas.SeverityLow)
		}
		assert.GreaterOrEqual(t, got, 0.0)
	})
}

func TestUpdateRisksFromAnomalies(t *testing.T) {
	risks := map[string]float64{"click_save": 0.5}
	anomalies := []schemas.AnomalyReport{
		{ActionID: "click_save", Severity: schemas.SeverityHigh},
		{ActionID: "click_new", Severity: schemas.SeverityMedium},
		{Severity: schemas.SeverityHigh}, // no action attribution
	}

	UpdateRisksFromAnomalies(risks, anomalies)

	assert.Greater(t, risks["click_save"], 0.5)
	assert.Greater(t, risks["click_new"], schemas.DefaultRiskScore)
	assert.Len(t, risks, 2)
}

func TestSelectByCoverage(t *testing.T) {
	t.Run("untried action wins", func(t *testing.T) {
		got := SelectByCoverage(
			[]string{"a", "b", "c"},
			[]string{"a", "a", "b"},
			map[string]float64{},
		)
		assert.Equal(t, "c", got)
	})

	t.Run("risky actions are skipped", func(t *testing.T) {
		got := SelectByCoverage(
			[]string{"risky", "safe"},
			nil,
			map[string]float64{"risky": 0.95, "safe": 0.1},
		)
		assert.Equal(t, "safe", got)
	})

	t.Run("threshold relaxes when everything is risky", func(t *testing.T) {
		got := SelectByCoverage(
			[]string{"bad", "worse"},
			nil,
			map[string]float64{"bad": 0.9, "worse": 0.99},
		)
		assert.Equal(t, "bad", got)
	})

	t.Run("empty set yields nothing", func(t *testing.T) {
		assert.Empty(t, SelectByCoverage(nil, nil, nil))
	})
}

func TestSafestActions(t *testing.T) {
	risks := map[string]float64{"a": 0.9, "b": 0.1, "c": 0.4}

	got := SafestActions([]string{"a", "b", "c", "d"}, risks, 3)

	// d has no score and defaults to 0.5, placing it after b and c.
	assert.Equal(t, []string{"b", "c", "d"}, got)
}
