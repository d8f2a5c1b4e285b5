package regime

import "TradeGate/internal/domain/models"

// ruleTable is the fixed regime -> trading rules mapping. It is policy, not
// a learned artifact, so it lives in code rather than config.
var ruleTable = map[models.RegimeLabel]models.TradingRules{
	models.RegimeLowVolBullish: {AllowLong: true, AllowShort: false, PositionMultiplier: 1.0, PauseTrading: false},
	models.RegimeLowVolBearish: {AllowLong: false, AllowShort: true, PositionMultiplier: 0.7, PauseTrading: false},
	models.RegimeHighVol:       {AllowLong: true, AllowShort: true, PositionMultiplier: 0.5, PauseTrading: false},
	models.RegimeTransition:    {AllowLong: false, AllowShort: false, PositionMultiplier: 0.0, PauseTrading: true},
	models.RegimeUnknown:       {AllowLong: false, AllowShort: false, PositionMultiplier: 0.5, PauseTrading: true},
}

// RulesFor returns the trading rules for a regime label. Unrecognized labels
// get the UNKNOWN (paused) rules.
func RulesFor(label models.RegimeLabel) models.TradingRules {
	if r, ok := ruleTable[label]; ok {
		return r
	}
	return ruleTable[models.RegimeUnknown]
}
