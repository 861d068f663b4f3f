// Package policy holds the tier and daily-delta tables shared by assessment
// scoring and the progressive daily score.
package policy

import (
	"math"

	"adherence-service/internal/domain"
)

const (
	MinScore = 0
	MaxScore = 100
)

// TierFor classifies a 0-100 assessment score.
func TierFor(score int) domain.Tier {
	switch {
	case score >= 71:
		return domain.TierHigh
	case score >= 41:
		return domain.TierNormal
	default:
		return domain.TierLow
	}
}

// PointsChange maps a day's compliance percentage to a score delta.
func PointsChange(compliancePercentage int) int {
	switch {
	case compliancePercentage >= 100:
		return 2
	case compliancePercentage >= 75:
		return 1
	case compliancePercentage >= 50:
		return 0
	case compliancePercentage >= 25:
		return -1
	default:
		return -2
	}
}

// CompliancePercentage rounds completed/total to a whole percentage in [0,100].
// A zero or negative total counts as no compliance.
func CompliancePercentage(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return Clamp(RoundHalfUp(float64(completed)/float64(total)*100), 0, 100)
}

// Step advances a running score by one day of compliance.
func Step(running, completed, total int) (score, compliancePercentage int) {
	compliancePercentage = CompliancePercentage(completed, total)
	score = Clamp(running+PointsChange(compliancePercentage), MinScore, MaxScore)
	return score, compliancePercentage
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// RoundHalfUp rounds to the nearest integer with .5 going toward +Inf.
// NaN rounds to 0 and infinities saturate.
func RoundHalfUp(v float64) int {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt32:
		return math.MaxInt32
	case v <= math.MinInt32:
		return math.MinInt32
	}
	return int(math.Floor(v + 0.5))
}

// TierProfile is the display metadata attached to a tier.
type TierProfile struct {
	Title     string `json:"title"`
	Intensity string `json:"intensity"`
}

var tierProfiles = map[domain.Tier]TierProfile{
	domain.TierLow:    {Title: "Foundation", Intensity: "gentle"},
	domain.TierNormal: {Title: "Momentum", Intensity: "moderate"},
	domain.TierHigh:   {Title: "Performance", Intensity: "advanced"},
}

// Describe returns display metadata for a tier.
func Describe(tier domain.Tier) TierProfile {
	return tierProfiles[tier]
}
