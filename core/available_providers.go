package core

import (
	"os"
	"strings"
)

// ConfigSource is a read-only key/value view over configuration.
// Lookup reports ok=false for keys that are not set at all.
type ConfigSource interface {
	Lookup(key string) (string, bool)
}

// EnvSource reads from the process environment on every call.
type EnvSource struct{}

func (EnvSource) Lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// MapSource is a fixed set of configuration values.
type MapSource map[string]string

func (m MapSource) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

const MagicLinkKey = "MAGIC_LINK"

// credentialField binds a configuration key to the field name the
// authentication library expects for it.
type credentialField struct {
	Field string
	Key   string
}

type providerDefinition struct {
	ID     Provider
	Name   string
	Fields []credentialField
}

func simpleProvider(id Provider, name, prefix string) providerDefinition {
	return providerDefinition{
		ID:   id,
		Name: name,
		Fields: []credentialField{
			{Field: "clientId", Key: prefix + "_CLIENT_ID"},
			{Field: "clientSecret", Key: prefix + "_CLIENT_SECRET"},
		},
	}
}

// Declaration order is the order providers are reported and rendered in.
var providerDefinitions = []providerDefinition{
	simpleProvider(ProviderGitHub, "GitHub", "GITHUB"),
	simpleProvider(ProviderGoogle, "Google", "GOOGLE"),
	simpleProvider(ProviderTwitter, "Twitter", "TWITTER"),
	simpleProvider(ProviderLinkedIn, "LinkedIn", "LINKEDIN"),
	simpleProvider(ProviderFacebook, "Facebook", "FACEBOOK"),
	simpleProvider(ProviderDiscord, "Discord", "DISCORD"),
	simpleProvider(ProviderGitLab, "GitLab", "GITLAB"),
	simpleProvider(ProviderTikTok, "TikTok", "TIKTOK"),
	simpleProvider(ProviderMicrosoft, "Microsoft", "MICROSOFT"),
	simpleProvider(ProviderSpotify, "Spotify", "SPOTIFY"),
	simpleProvider(ProviderDropbox, "Dropbox", "DROPBOX"),
	simpleProvider(ProviderTwitch, "Twitch", "TWITCH"),
	{
		ID:   ProviderApple,
		Name: "Apple",
		Fields: []credentialField{
			{Field: "clientId", Key: "APPLE_CLIENT_ID"},
			{Field: "teamId", Key: "APPLE_TEAM_ID"},
			{Field: "keyId", Key: "APPLE_KEY_ID"},
			{Field: "privateKey", Key: "APPLE_PRIVATE_KEY"},
		},
	},
}

// AllProviders returns every known provider in declaration order.
func AllProviders() []Provider {
	all := make([]Provider, 0, len(providerDefinitions))
	for _, def := range providerDefinitions {
		all = append(all, def.ID)
	}
	return all
}

// RequiredKeys returns the configuration keys a provider needs, or nil for
// an unknown provider.
func RequiredKeys(p Provider) []string {
	def, ok := findDefinition(p)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(def.Fields))
	for _, f := range def.Fields {
		keys = append(keys, f.Key)
	}
	return keys
}

// ResolveAvailableProviders lists the providers whose credentials are all
// present and non-empty in src. Missing configuration only excludes a provider.
func ResolveAvailableProviders(src ConfigSource) []Provider {
	available := make([]Provider, 0, len(providerDefinitions))
	for _, def := range providerDefinitions {
		if _, ok := def.credentials(src); ok {
			available = append(available, def.ID)
		}
	}
	return available
}

// ResolveMagicLinkEnabled reports whether the email-link sign-in is switched on.
func ResolveMagicLinkEnabled(src ConfigSource) bool {
	v, ok := src.Lookup(MagicLinkKey)
	return ok && strings.EqualFold(v, "true")
}

// ProviderCredentials returns the credential fields of p keyed by the names
// the authentication library uses. ok is false when p is unavailable.
func ProviderCredentials(src ConfigSource, p Provider) (map[string]string, bool) {
	def, ok := findDefinition(p)
	if !ok {
		return nil, false
	}
	return def.credentials(src)
}

// ProviderName returns the display name for p.
func ProviderName(p Provider) string {
	if def, ok := findDefinition(p); ok {
		return def.Name
	}
	s := string(p)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (d providerDefinition) credentials(src ConfigSource) (map[string]string, bool) {
	creds := make(map[string]string, len(d.Fields))
	for _, f := range d.Fields {
		v, ok := src.Lookup(f.Key)
		if !ok || v == "" {
			return nil, false
		}
		creds[f.Field] = v
	}
	return creds, true
}

func findDefinition(p Provider) (providerDefinition, bool) {
	for _, def := range providerDefinitions {
		if def.ID == p {
			return def, true
		}
	}
	return providerDefinition{}, false
}
