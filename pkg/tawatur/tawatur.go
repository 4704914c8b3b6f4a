// Package tawatur assesses the independence of a claim's evidence set.
// Items are clustered by origin; the number of genuinely independent
// clusters determines the corroboration class, and shared retrieval
// fingerprints across clusters collapse apparent independence.
package tawatur

import (
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/Sanad-Labs/sanad/pkg/contracts"
	"github.com/Sanad-Labs/sanad/pkg/decimal"
)

// IndependenceKey derives the clustering key for an item. Two items
// with the same key are one source regardless of how many rows carry
// them. The system name is NFC-normalized so visually identical names
// with different code point sequences cluster together.
func IndependenceKey(item contracts.EvidenceItem) string {
	system := norm.NFC.String(strings.TrimSpace(item.SourceSystem))
	origin := item.UpstreamOriginID
	if origin == "" {
		origin = item.EvidenceID
	}
	return system + "|" + origin
}

// CollusivePair records two clusters whose items share a retrieval
// fingerprint.
type CollusivePair struct {
	KeyA   string `json:"key_a"`
	KeyB   string `json:"key_b"`
	Reason string `json:"reason"`
}

// Assessment is the independence result for one evidence set.
type Assessment struct {
	// Clusters maps independence key to the evidence ids in it, each
	// list sorted.
	Clusters map[string][]string `json:"clusters"`

	// NominalSources is the distinct key count before collusion
	// analysis; EffectiveSources is the count after collusive clusters
	// are merged.
	NominalSources   int `json:"nominal_sources"`
	EffectiveSources int `json:"effective_sources"`

	Class contracts.TawaturClass `json:"class"`

	// CollusionRisk is collusive pairs over total cluster pairs, a
	// scale-4 decimal string. "0.0000" when under two clusters.
	CollusionRisk  string          `json:"collusion_risk"`
	CollusivePairs []CollusivePair `json:"collusive_pairs,omitempty"`
}

// Assess computes the independence assessment for the full evidence
// set of one claim. An empty set yields class NONE with zero sources;
// the caller decides whether that is fatal.
func Assess(items []contracts.EvidenceItem) Assessment {
	clusters := make(map[string][]string)
	byKey := make(map[string][]contracts.EvidenceItem)
	for _, item := range items {
		key := IndependenceKey(item)
		clusters[key] = append(clusters[key], item.EvidenceID)
		byKey[key] = append(byKey[key], item)
	}
	keys := make([]string, 0, len(clusters))
	for k := range clusters {
		sort.Strings(clusters[k])
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := Assessment{
		Clusters:       clusters,
		NominalSources: len(keys),
	}

	// Pairwise collusion scan over distinct clusters, merged with
	// union-find so chains of shared fingerprints collapse together.
	parent := make(map[string]string, len(keys))
	for _, k := range keys {
		parent[k] = k
	}
	var find func(string) string
	find = func(k string) string {
		if parent[k] != k {
			parent[k] = find(parent[k])
		}
		return parent[k]
	}

	totalPairs := 0
	for i := 0; i < len(keys); i++ {
		for j := i + 1; j < len(keys); j++ {
			totalPairs++
			reason, collusive := sharedFingerprint(byKey[keys[i]], byKey[keys[j]])
			if !collusive {
				continue
			}
			out.CollusivePairs = append(out.CollusivePairs, CollusivePair{
				KeyA:   keys[i],
				KeyB:   keys[j],
				Reason: reason,
			})
			ra, rb := find(keys[i]), find(keys[j])
			if ra != rb {
				parent[rb] = ra
			}
		}
	}

	roots := make(map[string]bool, len(keys))
	for _, k := range keys {
		roots[find(k)] = true
	}
	out.EffectiveSources = len(roots)
	out.Class = Classify(out.EffectiveSources)

	if totalPairs == 0 {
		out.CollusionRisk = decimal.Zero().Score()
	} else {
		out.CollusionRisk = decimal.Ratio(int64(len(out.CollusivePairs)), int64(totalPairs)).Score()
	}
	return out
}

// Classify maps an independent-source count to its class.
func Classify(sources int) contracts.TawaturClass {
	switch {
	case sources >= 3:
		return contracts.TawaturMutawatir
	case sources == 2:
		return contracts.TawaturAhad2
	case sources == 1:
		return contracts.TawaturAhad1
	default:
		return contracts.TawaturNone
	}
}

// sharedFingerprint reports whether any item in a shares a retrieval
// fingerprint with any item in b: an identical non-zero retrieval
// timestamp or an identical non-empty ingest actor. Absent fields are
// no fingerprint.
func sharedFingerprint(a, b []contracts.EvidenceItem) (string, bool) {
	for _, ia := range a {
		for _, ib := range b {
			if !ia.RetrievalTimestamp.IsZero() && ia.RetrievalTimestamp.Equal(ib.RetrievalTimestamp) {
				return "shared_retrieval_timestamp", true
			}
			if ia.IngestActorID != "" && ia.IngestActorID == ib.IngestActorID {
				return "shared_ingest_actor", true
			}
		}
	}
	return "", false
}
