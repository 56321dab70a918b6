package core

import "time"

type Config struct {
	BaseURL   string          `yaml:"base_url"`
	Session   SessionConfig   `yaml:"session"`
	Gate      GateConfig      `yaml:"gate"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type SessionConfig struct {
	TokenCookie   string `yaml:"token_cookie"`   // Cookie holding the session token
	CacheCookie   string `yaml:"cache_cookie"`   // Cookie holding the signed session snapshot
	CacheSecret   string `yaml:"cache_secret"`   // HMAC secret for the snapshot; empty disables the cache
	CacheMaxAge   int    `yaml:"cache_max_age"`  // Snapshot lifetime in seconds
	SecureCookies bool   `yaml:"secure_cookies"` // Set the Secure attribute on cookies we write
}

type GateConfig struct {
	PublicPaths []string `yaml:"public_paths"` // Extra public prefixes
	Exclude     []string `yaml:"exclude"`      // Regular expressions for paths the gate skips
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

const (
	DefaultTokenCookie = "authgate.session_token"
	DefaultCacheCookie = "authgate.session_data"
	DefaultCacheMaxAge = 5 * 60
)

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:3000"
	}
	if c.Session.TokenCookie == "" {
		c.Session.TokenCookie = DefaultTokenCookie
	}
	if c.Session.CacheCookie == "" {
		c.Session.CacheCookie = DefaultCacheCookie
	}
	if c.Session.CacheMaxAge == 0 {
		c.Session.CacheMaxAge = DefaultCacheMaxAge
	}
	if len(c.Gate.Exclude) == 0 {
		c.Gate.Exclude = append([]string(nil), DefaultExclusions...)
	}
}

func (c *SessionConfig) CacheEnabled() bool {
	return c.CacheSecret != "" && c.CacheMaxAge > 0
}

func (c *SessionConfig) CacheDuration() time.Duration {
	return time.Duration(c.CacheMaxAge) * time.Second
}
