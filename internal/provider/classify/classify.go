// Package classify maps raw provider failures (HTTP status, provider error
// payloads, transport errors) onto the shared error taxonomy used by the
// fallback orchestrator.
package classify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind is the shared error taxonomy.
type Kind int

const (
	Unknown Kind = iota
	MalformedResponse
	NetworkError
	NotFound
	RateLimited
	QuotaOrBilling
	Unauthorized
	UnsupportedForAsset
	NoProviderConfigured
)

var kindNames = map[Kind]string{
	Unknown:              "Unknown",
	MalformedResponse:    "MalformedResponse",
	NetworkError:         "NetworkError",
	NotFound:             "NotFound",
	RateLimited:          "RateLimited",
	QuotaOrBilling:       "QuotaOrBilling",
	Unauthorized:         "Unauthorized",
	UnsupportedForAsset:  "UnsupportedForAsset",
	NoProviderConfigured: "NoProviderConfigured",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalText lets kinds appear by name in JSON and logs.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	for kind, name := range kindNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown error kind %q", b)
}

// ProviderSpecific reports whether a failure of this kind is attributable to
// the provider rather than to the request, i.e. whether the next provider in
// the chain might still succeed.
func (k Kind) ProviderSpecific() bool {
	switch k {
	case UnsupportedForAsset, NoProviderConfigured:
		return false
	default:
		return true
	}
}

// severity orders kinds when an adapter has to pick one classification out
// of several sub-call failures. Higher wins.
func (k Kind) severity() int {
	switch k {
	case UnsupportedForAsset:
		return 7
	case Unauthorized:
		return 6
	case QuotaOrBilling:
		return 5
	case RateLimited:
		return 4
	case NotFound:
		return 3
	case NetworkError:
		return 2
	case MalformedResponse:
		return 1
	default:
		return 0
	}
}

// Error is an already-classified provider failure.
type Error struct {
	Kind             Kind
	Message          string
	ProviderSpecific bool
	// Status is the HTTP status that produced the error, 0 when not applicable.
	Status int
	// Code is the provider's own error code from an in-band error payload.
	Code int
	// Call names the sub-call (quote, rsi, macd, historical, status) when known.
	Call string
	Err  error
}

func (e *Error) Error() string {
	if e.Call != "" {
		return e.Call + ": " + e.Message
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error with the default provider-specific flag for kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), ProviderSpecific: kind.ProviderSpecific()}
}

// WithCall returns a copy of e tagged with the sub-call name.
func (e *Error) WithCall(call string) *Error {
	cp := *e
	cp.Call = call
	return &cp
}

// As extracts a *Error from err. Unclassified errors are treated as transport
// failures.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return FromTransport(err)
}

// FromTransport classifies an error returned by the HTTP client itself.
func FromTransport(err error) *Error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "request timed out"
	}
	return &Error{Kind: NetworkError, Message: msg, ProviderSpecific: true, Err: err}
}

// FromStatus classifies a non-2xx HTTP status. body is an optional excerpt of
// the response payload; provider phrases in it refine the classification.
func FromStatus(status int, body string) *Error {
	var kind Kind
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		kind = Unauthorized
	case status == http.StatusTooManyRequests:
		kind = RateLimited
	case status == http.StatusPaymentRequired:
		kind = QuotaOrBilling
	case status == http.StatusNotFound:
		kind = NotFound
	case status >= 500:
		kind = NetworkError
	default:
		kind = MalformedResponse
	}
	if k, ok := phraseKind(body); ok && k.severity() > kind.severity() {
		kind = k
	}
	e := New(kind, "%s", statusMessage(status, body))
	e.Status = status
	return e
}

// FromMessage classifies a provider error message returned inside an
// otherwise successful HTTP response. Unrecognized messages are
// MalformedResponse.
func FromMessage(msg string) *Error {
	k, ok := phraseKind(msg)
	if !ok {
		k = MalformedResponse
	}
	return New(k, "%s", strings.TrimSpace(msg))
}

// Strongest returns the highest-severity error in errs, preferring the first
// on ties. Nil entries are ignored.
func Strongest(errs ...*Error) *Error {
	var best *Error
	for _, e := range errs {
		if e == nil {
			continue
		}
		if best == nil || e.Kind.severity() > best.Kind.severity() {
			best = e
		}
	}
	return best
}

var phrases = []struct {
	kind Kind
	subs []string
}{
	{UnsupportedForAsset, []string{"not supported for this asset", "unsupported asset", "unsupported symbol type"}},
	{Unauthorized, []string{"invalid api key", "invalid apikey", "unknown api key", "api key is invalid", "incorrect or not specified", "apikey is invalid", "not registered", "unauthorized", "not authorized", "invalid_app_id", "invalid app_id", "missing api key", "missing_app_id", "invalid access key", "invalid_access_key", "forbidden"}},
	{RateLimited, []string{"rate limit", "too many requests", "api call frequency", "requests per minute", "run out of api credits", "quota", "exceeded the maximum"}},
	{QuotaOrBilling, []string{"billing", "account inactive", "inactive account", "not_active", "subscription", "premium", "upgrade your plan", "payment required", "not entitled", "usage limit", "available starting with"}},
	{NotFound, []string{"not found", "no data", "invalid symbol", "unknown symbol", "does not exist", "missing or invalid"}},
}

func phraseKind(msg string) (Kind, bool) {
	m := strings.ToLower(msg)
	if strings.TrimSpace(m) == "" {
		return Unknown, false
	}
	for _, p := range phrases {
		for _, s := range p.subs {
			if strings.Contains(m, s) {
				return p.kind, true
			}
		}
	}
	return Unknown, false
}

func statusMessage(status int, body string) string {
	body = strings.TrimSpace(body)
	if len(body) > 200 {
		body = body[:200]
	}
	if body == "" {
		return fmt.Sprintf("HTTP %d %s", status, http.StatusText(status))
	}
	return fmt.Sprintf("HTTP %d: %s", status, body)
}
