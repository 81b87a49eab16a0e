// SPDX-License-Identifier: AGPL-3.0-or-later
package safety

// Limits are the hard ceilings on automated execution. They can only be
// changed through the explicit settings surface, which clamps every value
// to the administrator ranges below; the orchestration logic has no code
// path to raise its own ceiling.
type Limits struct {
	MaxOperations    int
	WallClockSeconds int
	MaxSudo          int
	CheckpointAfter  int
	MaxCommandLength int
	MaxServiceName   int
	MaxContainerID   int
	MaxPackageName   int
}

// Administrator clamp ranges. Setters never remove a limit, only move it
// inside these bounds.
const (
	MinOperations      = 1
	MaxOperationsCeil  = 100
	MinWallClock       = 10
	MaxWallClockCeil   = 3600
	MinSudo            = 0
	MaxSudoCeil        = 10
	MinCommandLength   = 256
	MaxCommandLenCeil  = 16384
	MinRateRequests    = 1
	MaxRateRequests    = 1000
	MinRateWindowSecs  = 1
	MaxRateWindowSecs  = 3600
	MinCheckpointAfter = 1
	MaxCheckpointCeil  = 10
)

// DefaultLimits returns the shipped ceilings.
func DefaultLimits() Limits {
	return Limits{
		MaxOperations:    25,
		WallClockSeconds: 300,
		MaxSudo:          3,
		CheckpointAfter:  2,
		MaxCommandLength: 4096,
		MaxServiceName:   256,
		MaxContainerID:   256,
		MaxPackageName:   256,
	}
}

// Clamped returns the limits with every value moved inside the
// administrator ranges. Identifier length ceilings have no clamp range and
// fall back to the shipped defaults when unset.
func (l Limits) Clamped() Limits {
	l.MaxOperations = clampInt(l.MaxOperations, MinOperations, MaxOperationsCeil)
	l.WallClockSeconds = clampInt(l.WallClockSeconds, MinWallClock, MaxWallClockCeil)
	l.MaxSudo = clampInt(l.MaxSudo, MinSudo, MaxSudoCeil)
	l.CheckpointAfter = clampInt(l.CheckpointAfter, MinCheckpointAfter, MaxCheckpointCeil)
	l.MaxCommandLength = clampInt(l.MaxCommandLength, MinCommandLength, MaxCommandLenCeil)
	defaults := DefaultLimits()
	if l.MaxServiceName <= 0 {
		l.MaxServiceName = defaults.MaxServiceName
	}
	if l.MaxContainerID <= 0 {
		l.MaxContainerID = defaults.MaxContainerID
	}
	if l.MaxPackageName <= 0 {
		l.MaxPackageName = defaults.MaxPackageName
	}
	return l
}

func clampInt(value, low, high int) int {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
