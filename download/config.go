package download

import "time"

// DefaultListenPort is the port advertised to trackers; this client
// never accepts inbound connections, so it is informational only.
const DefaultListenPort = 6969

// DefaultChokeTimeout bounds how long a session waits for an unchoke
// before requesting a chunk's blocks, after which it gives up on the
// peer. Once a chunk's requests are sent, a later choke is not timed out.
const DefaultChokeTimeout = 30 * time.Second

// DefaultDigestRetries is how many times a chunk is re-downloaded from
// the same peer after a digest mismatch before the session fails.
const DefaultDigestRetries = 1

// Config configures an Orchestrator run.
type Config struct {
	// ClientID is the 20-byte peer identifier presented to trackers and
	// peers; by convention it begins with "-XXYYYY-".
	ClientID string
	// ListenPort is echoed to trackers in announce requests.
	ListenPort int64
	// ChokeTimeout bounds how long a chunk download waits to be
	// unchoked before the session is abandoned.
	ChokeTimeout time.Duration
	// DigestRetries is how many times a mismatched chunk is retried
	// before the download fails.
	DigestRetries int
}

// Option mutates a Config being built by New.
type Option func(*Config)

func defaults(c *Config) {
	c.ListenPort = DefaultListenPort
	c.ChokeTimeout = DefaultChokeTimeout
	c.DigestRetries = DefaultDigestRetries
}

// WithListenPort overrides the port advertised to trackers.
func WithListenPort(port int64) Option {
	return func(c *Config) { c.ListenPort = port }
}

// WithChokeTimeout overrides how long a chunk download waits to be
// unchoked before the session is abandoned.
func WithChokeTimeout(d time.Duration) Option {
	return func(c *Config) { c.ChokeTimeout = d }
}

// WithDigestRetries overrides how many times a mismatched chunk is
// retried before the download fails.
func WithDigestRetries(n int) Option {
	return func(c *Config) { c.DigestRetries = n }
}

// WithClientID overrides the 20-byte peer identifier presented to
// trackers and peers.
func WithClientID(id string) Option {
	return func(c *Config) { c.ClientID = id }
}
