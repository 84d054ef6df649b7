package params

import "time"

const (
	ServerBodyLimit    = 1048576 // 1 MiB
	ServerIdleTimeout  = 30 * time.Second
	ServerReadTimeout  = 10 * time.Second
	ServerWriteTimeout = 10 * time.Second

	ResetTokenKeyPrefix = "pr:" // password reset requests, keyed by token hash
	RateLimitKeyPrefix  = "rl:" // rate limit counters

	HealthCheckServerAddr = ":3001" // health check server address

	AccessTokenExpiration  = 15 * time.Minute    // access tokens are invalidated by expiry only
	RefreshTokenExpiration = 30 * 24 * time.Hour // refresh tokens are revocable via the session store
	MfaChallengeExpiration = 5 * time.Minute     // two-step login challenge token lifetime
	ResetTokenExpiration   = 30 * time.Minute    // password reset token lifetime

	SigningKeyID = "primary" // kid embedded in token headers; key rotation hook

	TOTPSecretBytes = 20 // 160-bit shared secret
	TOTPPeriod      = 30 // seconds per time step
	TOTPDigits      = 6

	RecoveryCodeCount  = 8  // codes issued per batch
	RecoveryCodeLength = 10 // characters per code

	BtgMinGrantMinutes = 1
	BtgMaxGrantMinutes = 120
	BtgMinReasonLength = 3

	ResetTokenBytes         = 32          // raw bytes per password reset token
	RateLimitRetentionSlack = time.Minute // counters outlive their window by this much
	RateLimitSweepEvery     = 512         // in-memory counters: sweep expired entries every N operations
)
