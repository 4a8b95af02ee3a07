package config

import "time"

// TokenConfig configures rotating ticket tokens.
type TokenConfig struct {
	Issuer       string
	Audience     string
	TTL          time.Duration // lifetime of one token; also the nonce TTL
	Leeway       time.Duration // clock skew tolerated on verification
	KeySource    string        // "static" (derived from MasterSecret) or "redis"
	MasterSecret string        // hex or raw secret used to derive signing keys
	KeyIDs       []string      // first signs, all verify
	KeyOverlap   time.Duration // how long a rotated-out key keeps verifying
	BindDevice   bool          // bind the first issuing device to the ticket
}

// LoadTokenConfig reads TOKEN_* variables.
func LoadTokenConfig() TokenConfig {
	return TokenConfig{
		Issuer:       envStr("TOKEN_ISSUER", "gate-presence"),
		Audience:     envStr("TOKEN_AUDIENCE", "gate-scanner"),
		TTL:          envDur("TOKEN_TTL", 30*time.Second),
		Leeway:       envDur("TOKEN_LEEWAY", 2*time.Second),
		KeySource:    envStr("TOKEN_KEY_SOURCE", "static"),
		MasterSecret: envStr("TOKEN_MASTER_SECRET", ""),
		KeyIDs:       envList("TOKEN_KEY_IDS", []string{"k1"}),
		KeyOverlap:   envDur("TOKEN_KEY_OVERLAP", 10*time.Minute),
		BindDevice:   envBool("TOKEN_BIND_DEVICE", true),
	}
}

// GuardConfig holds the anti-sharing thresholds.
type GuardConfig struct {
	BaseBlock      time.Duration // first exponential block
	MaxBlock       time.Duration // exponential cap
	MismatchBlock  time.Duration // fixed hard block on a foreign device
	RaceWindow     time.Duration // look-back for simultaneous use
	FlipFlopWindow time.Duration // look-back for rapid toggling
	FlipFlopMax    int           // accepted toggles tolerated inside the window
	RaceCountsGate bool          // a different gate alone counts as a race
	HistoryLimit   int           // rows read per heuristic query
}

// LoadGuardConfig reads GUARD_* variables.  MaxBlock never drops below
// BaseBlock.
func LoadGuardConfig() GuardConfig {
	c := GuardConfig{
		BaseBlock:      envDur("GUARD_BASE_BLOCK", 30*time.Second),
		MaxBlock:       envDur("GUARD_MAX_BLOCK", 10*time.Minute),
		MismatchBlock:  envDur("GUARD_MISMATCH_BLOCK", 15*time.Minute),
		RaceWindow:     envDur("GUARD_RACE_WINDOW", 3*time.Second),
		FlipFlopWindow: envDur("GUARD_FLIPFLOP_WINDOW", 2*time.Minute),
		FlipFlopMax:    envInt("GUARD_FLIPFLOP_MAX", 4),
		RaceCountsGate: envBool("GUARD_RACE_COUNTS_GATE", false),
		HistoryLimit:   envInt("GUARD_HISTORY_LIMIT", 50),
	}
	if c.MaxBlock < c.BaseBlock {
		c.MaxBlock = c.BaseBlock
	}
	if c.FlipFlopMax < 1 {
		c.FlipFlopMax = 1
	}
	return c
}

// ScanConfig configures the presence pipeline.
type ScanConfig struct {
	Cooldown  time.Duration // per-ticket bounce suppression
	LockTTL   time.Duration // lease on the per-ticket mutex
	KeyPrefix string        // namespace for nonce, cooldown and lock keys
}

// LoadScanConfig reads SCAN_* variables.
func LoadScanConfig() ScanConfig {
	return ScanConfig{
		Cooldown:  envDur("SCAN_COOLDOWN", 1500*time.Millisecond),
		LockTTL:   envDur("SCAN_LOCK_TTL", 2*time.Second),
		KeyPrefix: envStr("SCAN_KEY_PREFIX", "gate"),
	}
}

// AMQPConfig locates the broker used for security alerts.  An empty URL
// disables publishing.
type AMQPConfig struct {
	URL        string
	AlertQueue string
	Consume    bool // run the security-alert consumer in-process
	AlertLog   string
}

// LoadAMQPConfig reads RABBITMQ_URL (or AMQP_URL).
func LoadAMQPConfig() AMQPConfig {
	url := envStr("RABBITMQ_URL", "")
	if url == "" {
		url = envStr("AMQP_URL", "")
	}
	return AMQPConfig{
		URL:        url,
		AlertQueue: envStr("ALERT_QUEUE", "gate.security"),
		Consume:    envBool("ALERT_CONSUMER_ENABLED", false),
		AlertLog:   envStr("ALERT_LOG_PATH", "logs/security.log"),
	}
}
