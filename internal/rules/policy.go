package rules

import "steward/internal/models"

// CadencePolicy describes how one condition type re-arms after being sent.
type CadencePolicy struct {
	Cadence            models.Cadence
	ResendIntervalDays int
}

// Policy maps every condition type to its cadence. It is built once at
// startup and passed explicitly to the Scheduler and Dispatcher so tests can
// substitute alternate tables.
type Policy map[models.ConditionType]CadencePolicy

// DefaultPolicy returns the production cadence table.
func DefaultPolicy() Policy {
	return Policy{
		models.ConditionTrendIncrease:        {Cadence: models.CadenceImmediate},
		models.ConditionThresholdWarning:     {Cadence: models.CadenceRecurring, ResendIntervalDays: 28},
		models.ConditionThresholdCritical:    {Cadence: models.CadenceRecurring, ResendIntervalDays: 28},
		models.ConditionExpiryFar:            {Cadence: models.CadenceOneTime},
		models.ConditionExpiryNear:           {Cadence: models.CadenceRecurring, ResendIntervalDays: 14},
		models.ConditionExpired:              {Cadence: models.CadenceRecurring, ResendIntervalDays: 7},
		models.ConditionConditionalStatus:    {Cadence: models.CadenceRecurring, ResendIntervalDays: 28},
		models.ConditionStalenessOverdue:     {Cadence: models.CadenceRecurring, ResendIntervalDays: 28},
		models.ConditionStalenessApproaching: {Cadence: models.CadenceOneTime},
	}
}

// For looks up the cadence policy for a condition type.
func (p Policy) For(c models.ConditionType) (CadencePolicy, bool) {
	cp, ok := p[c]
	return cp, ok
}
