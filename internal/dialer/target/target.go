// Package target parses operator-supplied dial targets into the endpoint
// syntax the control plane understands.
//
// Two forms are accepted:
//
//	tech/resource          e.g. "SIP/4448", "PJSIP/agent-7@trunk-east"
//	sip:user@host[:port]   normalized into a SIP dialstring
package target

import (
	"fmt"
	"strings"

	"github.com/emiago/sipgo/sip"
)

// Dialstring is a validated control plane endpoint.
type Dialstring struct {
	// Tech is the channel technology, e.g. "SIP" or "PJSIP".
	Tech string
	// Resource is the technology-specific remainder, e.g. "4448@pbx:5070".
	Resource string
}

// String returns the endpoint in tech/resource form.
func (d Dialstring) String() string {
	return d.Tech + "/" + d.Resource
}

// ParseError indicates the target string is not a usable dial target.
type ParseError struct {
	Input  string
	Reason string
	Cause  error
}

// Error returns the error message.
func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("parse target %q: %s: %v", e.Input, e.Reason, e.Cause)
	}
	return fmt.Sprintf("parse target %q: %s", e.Input, e.Reason)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// Parse validates a raw operator target and returns its dialstring.
func Parse(raw string) (Dialstring, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Dialstring{}, &ParseError{Input: raw, Reason: "empty target"}
	}

	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "sip:") || strings.HasPrefix(lower, "sips:") {
		return parseSIPURI(s)
	}

	tech, resource, found := strings.Cut(s, "/")
	if !found {
		return Dialstring{}, &ParseError{Input: raw, Reason: "expected tech/resource or a sip: URI"}
	}
	if tech == "" {
		return Dialstring{}, &ParseError{Input: raw, Reason: "missing technology before '/'"}
	}
	if resource == "" {
		return Dialstring{}, &ParseError{Input: raw, Reason: "missing resource after '/'"}
	}
	return Dialstring{Tech: tech, Resource: resource}, nil
}

// parseSIPURI normalizes a SIP URI into a SIP dialstring, keeping explicit
// host and port so the control plane routes to the right peer.
func parseSIPURI(s string) (Dialstring, error) {
	var uri sip.Uri
	if err := sip.ParseUri(s, &uri); err != nil {
		return Dialstring{}, &ParseError{Input: s, Reason: "invalid SIP URI", Cause: err}
	}
	if uri.User == "" {
		return Dialstring{}, &ParseError{Input: s, Reason: "SIP URI has no user part"}
	}
	if uri.Host == "" {
		return Dialstring{}, &ParseError{Input: s, Reason: "SIP URI has no host part"}
	}

	resource := uri.User + "@" + uri.Host
	if uri.Port > 0 {
		resource = fmt.Sprintf("%s:%d", resource, uri.Port)
	}
	return Dialstring{Tech: "SIP", Resource: resource}, nil
}
