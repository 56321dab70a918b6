package core

import (
	"path"
	"strings"
)

const (
	HomePath    = "/"
	SignInPath  = "/auth/sign"
	ProfilePath = "/profile"
)

// PathClass is the access category of a request path.
type PathClass int

const (
	PathProtected PathClass = iota
	PathHome
	PathAuthSignIn
	PathOtherPublic
)

func (c PathClass) String() string {
	switch c {
	case PathHome:
		return "home"
	case PathAuthSignIn:
		return "auth_sign_in"
	case PathOtherPublic:
		return "other_public"
	default:
		return "protected"
	}
}

// Verdict is the gate's decision for one request.
type Verdict int

const (
	Allow Verdict = iota
	RedirectToSignIn
	RedirectToProfile
)

func (v Verdict) String() string {
	switch v {
	case RedirectToSignIn:
		return "redirect_sign_in"
	case RedirectToProfile:
		return "redirect_profile"
	default:
		return "allow"
	}
}

// Location is the redirect target of v, empty for Allow.
func (v Verdict) Location() string {
	switch v {
	case RedirectToSignIn:
		return SignInPath
	case RedirectToProfile:
		return ProfilePath
	default:
		return ""
	}
}

// AccessRules holds the public path prefixes beyond home and sign-in.
// The zero value is the default rule set.
type AccessRules struct {
	PublicPaths []string
}

var defaultRules AccessRules

// ClassifyPath classifies path with the default rules.
func ClassifyPath(p string) PathClass {
	return defaultRules.Classify(p)
}

// EvaluateAccess decides the verdict for path under the default rules.
func EvaluateAccess(p string, hasSession bool) Verdict {
	return defaultRules.Evaluate(p, hasSession)
}

func (r AccessRules) Classify(p string) PathClass {
	if p == HomePath {
		return PathHome
	}
	if matchesPrefix(p, SignInPath) {
		return PathAuthSignIn
	}
	for _, public := range r.PublicPaths {
		if public == HomePath || public == "" {
			continue
		}
		if matchesPrefix(p, public) {
			return PathOtherPublic
		}
	}
	return PathProtected
}

func (r AccessRules) Evaluate(p string, hasSession bool) Verdict {
	class := r.Classify(p)
	switch {
	case hasSession && class == PathAuthSignIn:
		return RedirectToProfile
	case !hasSession && class == PathProtected:
		return RedirectToSignIn
	default:
		return Allow
	}
}

// NormalizePath cleans a request path so that dot segments cannot move a
// request between classes.
func NormalizePath(p string) string {
	if p == "" {
		return HomePath
	}
	if p[0] != '/' {
		p = "/" + p
	}
	return path.Clean(p)
}

func matchesPrefix(p, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}
