// Package aggregate builds the externally visible Result from the terminal
// state of a fallback run, and collapses stored results to the newest per
// asset.
package aggregate

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"marketfeed/internal/provider"
	"marketfeed/internal/provider/classify"
)

// UnknownProvider is the source reported when no provider produced data.
const UnknownProvider = "Unknown"

// MaxErrorRunes bounds the error string so it stays display-safe.
const MaxErrorRunes = 500

// NoProvidersMessage is reported when nothing could be attempted.
const NoProvidersMessage = "no providers configured"

// Accepted copies the winning outcome verbatim.
func Accepted(source string, out provider.Outcome, attempts []provider.Attempt) provider.Result {
	return provider.Result{
		Fields:         out.Fields,
		SourceProvider: source,
		Warnings:       out.Warnings,
		Attempts:       attempts,
	}
}

// Partial returns a partial outcome with the attempt path as its error,
// prefixed "Partial data from <source>: ".
func Partial(source string, out provider.Outcome, attempts []provider.Attempt) provider.Result {
	specific := true
	return provider.Result{
		Fields:                out.Fields,
		SourceProvider:        source,
		Error:                 truncate("Partial data from "+source+": "+join(attempts), MaxErrorRunes),
		ProviderSpecificError: &specific,
		Warnings:              out.Warnings,
		Attempts:              attempts,
	}
}

// Failed reports a run without usable data. source is the provider that
// stopped the chain, or UnknownProvider when the list was exhausted.
func Failed(source string, providerSpecific bool, attempts []provider.Attempt) provider.Result {
	if source == "" {
		source = UnknownProvider
	}
	msg := ErrorSummary(attempts)
	if msg == "" {
		msg = NoProvidersMessage
	}
	return provider.Result{
		SourceProvider:        source,
		Error:                 msg,
		ProviderSpecificError: &providerSpecific,
		Attempts:              attempts,
	}
}

// NoProviders is the result when no registration was ready.
func NoProviders() provider.Result {
	specific := classify.NoProviderConfigured.ProviderSpecific()
	return provider.Result{
		SourceProvider:        UnknownProvider,
		Error:                 NoProvidersMessage,
		ProviderSpecificError: &specific,
	}
}

// ErrorSummary joins the distinct failure messages of the attempt path as
// "<provider>: <message>" separated by "; ", in attempt order.
func ErrorSummary(attempts []provider.Attempt) string {
	return truncate(join(attempts), MaxErrorRunes)
}

func join(attempts []provider.Attempt) string {
	seen := make(map[string]struct{}, len(attempts))
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		if a.Message == "" {
			continue
		}
		s := a.Provider + ": " + a.Message
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		parts = append(parts, s)
	}
	return strings.Join(parts, "; ")
}

// truncate cuts s to at most n runes, the last being an ellipsis.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

// Snapshot is one stored result.
type Snapshot struct {
	AssetID    string          `json:"assetId"`
	Kind       provider.Kind   `json:"kind"`
	Timeframe  string          `json:"timeframe,omitempty"`
	Result     provider.Result `json:"result"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

type snapshotKey struct {
	asset     string
	kind      provider.Kind
	timeframe string
}

// LatestByAsset keeps the newest snapshot per (asset, kind, timeframe).
// For equal timestamps the later input wins. Zero timestamps are replaced
// with time.Now().UTC(). Output is sorted by asset, kind, then timeframe.
func LatestByAsset(snaps []Snapshot) []Snapshot {
	now := time.Now().UTC()
	latest := make(map[snapshotKey]Snapshot, len(snaps))
	for _, s := range snaps {
		if s.ReceivedAt.IsZero() {
			s.ReceivedAt = now
		}
		key := snapshotKey{asset: s.AssetID, kind: s.Kind, timeframe: s.Timeframe}
		if cur, ok := latest[key]; ok && s.ReceivedAt.Before(cur.ReceivedAt) {
			continue
		}
		latest[key] = s
	}

	out := make([]Snapshot, 0, len(latest))
	for _, v := range latest {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AssetID != out[j].AssetID {
			return out[i].AssetID < out[j].AssetID
		}
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Timeframe < out[j].Timeframe
	})
	return out
}
