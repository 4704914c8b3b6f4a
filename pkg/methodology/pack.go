package methodology

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/Sanad-Labs/sanad/pkg/celdp"
	"github.com/Sanad-Labs/sanad/pkg/decimal"
	"github.com/Sanad-Labs/sanad/pkg/tiers"
)

// PackLoadError represents a failure while loading a methodology pack.
// Pack loading always fails closed: a rejected pack never degrades to
// the default silently.
type PackLoadError struct {
	Step       string `json:"step"`
	Reason     string `json:"reason"`
	FailClosed bool   `json:"fail_closed"`
}

func (e *PackLoadError) Error() string {
	return fmt.Sprintf("methodology pack load failed at step '%s': %s (fail_closed=%v)",
		e.Step, e.Reason, e.FailClosed)
}

// packSchemaURL anchors the embedded schema for the compiler.
const packSchemaURL = "https://sanad.schemas.local/methodology/pack.schema.json"

// packSchema is the structural contract for methodology packs. Shape
// and types live here; semantic bounds (weight order, threshold ranges,
// predicate determinism) are enforced by the load steps.
const packSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["methodology"],
  "additionalProperties": false,
  "properties": {
    "methodology": {
      "type": "object",
      "required": ["name", "version"],
      "additionalProperties": false,
      "properties": {
        "name": {
          "type": "string",
          "pattern": "^[a-z][a-z0-9-]*(\\.[a-z][a-z0-9-]*)*/[a-z][a-z0-9-]*$"
        },
        "version": {
          "type": "string",
          "pattern": "^[0-9]+\\.[0-9]+\\.[0-9]+(-[0-9A-Za-z.-]+)?$"
        }
      }
    },
    "tiers": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "PRIMARY_AUDITED": { "$ref": "#/$defs/tierOverride" },
        "PRIMARY_SYSTEM": { "$ref": "#/$defs/tierOverride" },
        "SECONDARY_CORROBORATED": { "$ref": "#/$defs/tierOverride" },
        "MANAGEMENT_REP": { "$ref": "#/$defs/tierOverride" },
        "EXTERNAL_UNVERIFIED": { "$ref": "#/$defs/tierOverride" },
        "RUMOR_INFERENCE": { "$ref": "#/$defs/tierOverride" }
      }
    },
    "thresholds": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "deviation": { "type": "string", "pattern": "^[0-9]+\\.[0-9]{1,4}$" },
        "staleness_days": { "type": "integer", "minimum": 1 }
      }
    },
    "predicates": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["rule", "expr"],
        "additionalProperties": false,
        "properties": {
          "rule": { "type": "string", "pattern": "^[a-z][a-z0-9_]*$" },
          "expr": { "type": "string", "minLength": 1 }
        }
      }
    }
  },
  "$defs": {
    "tierOverride": {
      "type": "object",
      "required": ["weight"],
      "additionalProperties": false,
      "properties": {
        "weight": { "type": "string", "pattern": "^[0-9]+\\.[0-9]{2}$" }
      }
    }
  }
}`

// packDoc mirrors the pack YAML.
type packDoc struct {
	Methodology struct {
		Name    string `yaml:"name" json:"name"`
		Version string `yaml:"version" json:"version"`
	} `yaml:"methodology" json:"methodology"`
	Tiers map[string]struct {
		Weight string `yaml:"weight" json:"weight"`
	} `yaml:"tiers" json:"tiers"`
	Thresholds struct {
		Deviation     string `yaml:"deviation" json:"deviation"`
		StalenessDays int    `yaml:"staleness_days" json:"staleness_days"`
	} `yaml:"thresholds" json:"thresholds"`
	Predicates []struct {
		Rule string `yaml:"rule" json:"rule"`
		Expr string `yaml:"expr" json:"expr"`
	} `yaml:"predicates" json:"predicates"`
}

// LoadFile reads and parses a methodology pack from disk.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &PackLoadError{Step: "read", Reason: err.Error(), FailClosed: true}
	}
	return Parse(data)
}

// Parse validates a methodology pack and constructs the effective
// registry: compiled-in defaults with the pack's overrides applied.
func Parse(data []byte) (*Registry, error) {
	// 1. Decode and validate shape against the embedded schema.
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &PackLoadError{Step: "yaml decode", Reason: err.Error(), FailClosed: true}
	}
	if err := validateShape(raw); err != nil {
		return nil, err
	}

	var doc packDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &PackLoadError{Step: "yaml decode", Reason: err.Error(), FailClosed: true}
	}

	// 2. Version compatibility: the pack must share the engine's
	// methodology line.
	version, err := semver.StrictNewVersion(doc.Methodology.Version)
	if err != nil {
		return nil, &PackLoadError{Step: "version compatibility", Reason: fmt.Sprintf("invalid version %s: %v", doc.Methodology.Version, err), FailClosed: true}
	}
	if version.Major() != Line {
		return nil, &PackLoadError{
			Step:       "version compatibility",
			Reason:     fmt.Sprintf("pack is methodology line %d, engine runs line %d", version.Major(), Line),
			FailClosed: true,
		}
	}

	registry := Default()
	registry.name = doc.Methodology.Name
	registry.version = version

	// 3. Tier weight overrides: merge over defaults, then require the
	// full table to stay in (0,1] with a strict strongest-first order.
	if err := applyTierOverrides(registry, doc); err != nil {
		return nil, err
	}

	// 4. Threshold overrides within documented bounds.
	if err := applyThresholds(registry, doc); err != nil {
		return nil, err
	}

	// 5. Predicates: deterministic-profile CEL, unique rule names.
	if err := compilePredicates(registry, doc); err != nil {
		return nil, err
	}

	return registry, nil
}

func validateShape(raw any) error {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(packSchemaURL, strings.NewReader(packSchema)); err != nil {
		return &PackLoadError{Step: "schema validation", Reason: err.Error(), FailClosed: true}
	}
	compiled, err := c.Compile(packSchemaURL)
	if err != nil {
		return &PackLoadError{Step: "schema validation", Reason: err.Error(), FailClosed: true}
	}

	// Round-trip through JSON so the validator sees json-decoded types.
	jsonBytes, err := json.Marshal(raw)
	if err != nil {
		return &PackLoadError{Step: "schema validation", Reason: err.Error(), FailClosed: true}
	}
	var jsonDoc any
	if err := json.Unmarshal(jsonBytes, &jsonDoc); err != nil {
		return &PackLoadError{Step: "schema validation", Reason: err.Error(), FailClosed: true}
	}
	if err := compiled.Validate(jsonDoc); err != nil {
		return &PackLoadError{Step: "schema validation", Reason: err.Error(), FailClosed: true}
	}
	return nil
}

func applyTierOverrides(registry *Registry, doc packDoc) error {
	for id, override := range doc.Tiers {
		tierID, err := tiers.Parse(id)
		if err != nil {
			return &PackLoadError{Step: "tier weight bounds", Reason: err.Error(), FailClosed: true}
		}
		weight, err := decimal.Parse(override.Weight)
		if err != nil {
			return &PackLoadError{Step: "tier weight bounds", Reason: fmt.Sprintf("tier %s: %v", id, err), FailClosed: true}
		}
		if weight.Sign() <= 0 || weight.Cmp(decimal.One()) > 0 {
			return &PackLoadError{
				Step:       "tier weight bounds",
				Reason:     fmt.Sprintf("tier %s weight %s outside (0,1]", id, override.Weight),
				FailClosed: true,
			}
		}
		registry.tierWeights[tierID] = weight
	}

	for i := 1; i < len(tiers.Ordered); i++ {
		stronger := registry.tierWeights[tiers.Ordered[i-1].ID]
		weaker := registry.tierWeights[tiers.Ordered[i].ID]
		if stronger.Cmp(weaker) <= 0 {
			return &PackLoadError{
				Step: "tier weight bounds",
				Reason: fmt.Sprintf("tier order violated: %s weight %s must exceed %s weight %s",
					tiers.Ordered[i-1].ID, stronger.Score(), tiers.Ordered[i].ID, weaker.Score()),
				FailClosed: true,
			}
		}
	}
	return nil
}

func applyThresholds(registry *Registry, doc packDoc) error {
	if doc.Thresholds.Deviation != "" {
		threshold, err := decimal.Parse(doc.Thresholds.Deviation)
		if err != nil {
			return &PackLoadError{Step: "threshold bounds", Reason: err.Error(), FailClosed: true}
		}
		if threshold.Cmp(deviationFloor) <= 0 || threshold.Cmp(deviationCeil) > 0 {
			return &PackLoadError{
				Step:       "threshold bounds",
				Reason:     fmt.Sprintf("deviation threshold %s outside (0, 0.50]", doc.Thresholds.Deviation),
				FailClosed: true,
			}
		}
		registry.deviationThreshold = threshold
	}

	if doc.Thresholds.StalenessDays != 0 {
		days := doc.Thresholds.StalenessDays
		if days < stalenessFloorDays || days > stalenessCeilDays {
			return &PackLoadError{
				Step:       "threshold bounds",
				Reason:     fmt.Sprintf("staleness horizon %d days outside [%d, %d]", days, stalenessFloorDays, stalenessCeilDays),
				FailClosed: true,
			}
		}
		registry.stalenessDays = days
	}
	return nil
}

func compilePredicates(registry *Registry, doc packDoc) error {
	if len(doc.Predicates) == 0 {
		return nil
	}

	evaluator, err := celdp.NewEvaluator()
	if err != nil {
		return &PackLoadError{Step: "predicate compile", Reason: err.Error(), FailClosed: true}
	}

	seen := map[string]bool{}
	for _, p := range doc.Predicates {
		if seen[p.Rule] {
			return &PackLoadError{
				Step:       "predicate compile",
				Reason:     fmt.Sprintf("duplicate predicate rule %q", p.Rule),
				FailClosed: true,
			}
		}
		seen[p.Rule] = true

		compiled, err := evaluator.Compile(p.Expr)
		if err != nil {
			return &PackLoadError{
				Step:       "predicate compile",
				Reason:     fmt.Sprintf("rule %q: %v", p.Rule, err),
				FailClosed: true,
			}
		}
		registry.predicates = append(registry.predicates, Predicate{Rule: p.Rule, pred: compiled})
	}

	sort.SliceStable(registry.predicates, func(i, j int) bool {
		return registry.predicates[i].Rule < registry.predicates[j].Rule
	})
	return nil
}
