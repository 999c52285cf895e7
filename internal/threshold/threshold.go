package threshold

// Level classifies the deployment's quota risk from the worst-case resource
// utilization.
type Level string

const (
	LevelNormal   Level = "normal"
	LevelWarning  Level = "warning"
	LevelFailover Level = "failover"
	LevelCritical Level = "critical"
)

// CriticalPct is the fixed cutoff above which all remaining services are
// shed at once, regardless of the configured failover threshold.
const CriticalPct = 90

// LowWaterPct is the utilization every resource must fall below before an
// automatic revert is considered safe. Kept well under the warning threshold
// so the system does not thrash around a single boundary.
const LowWaterPct = 50

// Severity orders levels for comparison: normal < warning < failover < critical.
func Severity(level Level) int {
	switch level {
	case LevelCritical:
		return 3
	case LevelFailover:
		return 2
	case LevelWarning:
		return 1
	default:
		return 0
	}
}

// Worse returns the more severe of two levels.
func Worse(a, b Level) Level {
	if Severity(b) > Severity(a) {
		return b
	}
	return a
}
