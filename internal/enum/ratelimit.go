package enum

// RateLimitProfile names a preset of inter-request pacing parameters.
type RateLimitProfile string

const (
	RateLimitBalanced     RateLimitProfile = "balanced"
	RateLimitConservative RateLimitProfile = "conservative"
	RateLimitAggressive   RateLimitProfile = "aggressive"
)

func (t RateLimitProfile) String() string {
	return string(t)
}

func GetRateLimitProfile(s string) RateLimitProfile {
	switch s {
	case "conservative":
		return RateLimitConservative
	case "aggressive":
		return RateLimitAggressive
	default:
		return RateLimitBalanced
	}
}
