package descriptor

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Terminal tracker states
const (
	StatusSuccess = "SUCCESS"
	StatusFailure = "FAILURE"
)

// defaultSynonyms apply to every controller version
var defaultSynonyms = map[string]string{
	"SUCCESS":   StatusSuccess,
	"COMPLETED": StatusSuccess,
	"FAILURE":   StatusFailure,
	"FAILED":    StatusFailure,
}

// ParseControllerVersion parses a Catalyst Center version. Controllers report
// four components ("2.3.7.6"); only the first three take part in semver
// comparisons.
func ParseControllerVersion(raw string) (*semver.Version, error) {
	s := strings.TrimPrefix(strings.TrimSpace(raw), "v")
	if s == "" {
		return nil, fmt.Errorf("empty controller version")
	}
	if parts := strings.Split(s, "."); len(parts) > 3 {
		s = strings.Join(parts[:3], ".")
	}
	v, err := semver.NewVersion(s)
	if err != nil {
		return nil, fmt.Errorf("invalid controller version %q: %w", raw, err)
	}
	return v, nil
}

func satisfies(constraint string, v *semver.Version) (bool, error) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, fmt.Errorf("invalid version constraint %q: %w", constraint, err)
	}
	return c.Check(v), nil
}

// Resolved is an operation with its version variant applied.
type Resolved struct {
	Operation
	// Rename maps canonical parameter keys to the keys sent on the wire
	Rename map[string]string
}

// Resolve returns the effective operation for the controller version. The
// first variant whose constraint matches wins; with no match, or a nil
// version, the base operation is used.
func (o *Operation) Resolve(version *semver.Version) (*Resolved, error) {
	r := &Resolved{Operation: *o}
	r.Variants = nil
	if version == nil {
		return r, nil
	}
	for _, variant := range o.Variants {
		ok, err := satisfies(variant.Version, version)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if variant.Function != "" {
			r.Function = variant.Function
		}
		if variant.Method != "" {
			r.Method = variant.Method
		}
		if variant.Path != "" {
			r.Path = variant.Path
		}
		if variant.Response != nil {
			r.Response = *variant.Response
		}
		r.Rename = variant.Rename
		break
	}
	return r, nil
}

// WireKey returns the key a canonical parameter is sent under
func (r *Resolved) WireKey(key string) string {
	if renamed, ok := r.Rename[key]; ok && renamed != "" {
		return renamed
	}
	return key
}

// StatusMapper maps controller status strings to SUCCESS, FAILURE or ""
// (non-terminal) for one controller version.
type StatusMapper struct {
	synonyms map[string]string
}

// NewStatusMapper builds the mapping for version from the defaults and every
// matching synonym rule of the hint. A nil version applies only the defaults.
func NewStatusMapper(hint VersionHint, version *semver.Version) (*StatusMapper, error) {
	m := &StatusMapper{synonyms: make(map[string]string, len(defaultSynonyms))}
	for k, v := range defaultSynonyms {
		m.synonyms[k] = v
	}
	if version == nil {
		return m, nil
	}
	for _, rule := range hint.StatusSynonyms {
		ok, err := satisfies(rule.Version, version)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		for _, s := range rule.Success {
			m.synonyms[strings.ToUpper(s)] = StatusSuccess
		}
		for _, s := range rule.Failure {
			m.synonyms[strings.ToUpper(s)] = StatusFailure
		}
	}
	return m, nil
}

// Terminal maps status to SUCCESS or FAILURE, or returns "" when the status
// is not terminal.
func (m *StatusMapper) Terminal(status string) string {
	return m.synonyms[strings.ToUpper(strings.TrimSpace(status))]
}
