// SPDX-License-Identifier: AGPL-3.0-or-later
package types

// Rate limit categories for privileged operations.
const (
	CategoryAuth      = "auth"
	CategorySudo      = "sudo"
	CategoryService   = "service"
	CategoryContainer = "container"
	CategoryPackage   = "package"
	CategoryApproval  = "approval"
)

// RateLimitConfig bounds one category to max_requests per window.
type RateLimitConfig struct {
	Category      string `json:"category" yaml:"category"`
	MaxRequests   int    `json:"max_requests" yaml:"max_requests"`
	WindowSeconds int    `json:"window_seconds" yaml:"window_seconds"`
}

// SafetySettings is the read/write boundary over the safety state. The
// detection rule tables themselves are not exposed, only their sizes.
type SafetySettings struct {
	RateLimits            []RateLimitConfig `json:"rate_limits"`
	MaxSudoEscalations    int               `json:"max_sudo_escalations"`
	CurrentSudoCount      int               `json:"current_sudo_count"`
	MaxCommandLength      int               `json:"max_command_length"`
	MaxIterations         int               `json:"max_iterations"`
	WallClockTimeoutSecs  int               `json:"wall_clock_timeout_seconds"`
	CheckpointAfter       int               `json:"checkpoint_after_recoveries"`
	MaxServiceNameLength  int               `json:"max_service_name_length"`
	MaxContainerIDLength  int               `json:"max_container_id_length"`
	MaxPackageNameLength  int               `json:"max_package_name_length"`
	DangerousPatternCount int               `json:"dangerous_pattern_count"`
	InjectionPatternCount int               `json:"injection_pattern_count"`
}
