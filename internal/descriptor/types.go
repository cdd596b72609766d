// Package descriptor holds the static, data-driven description of every
// controller resource: its operations, its parameter schema and the rules the
// validator, the diff engine and the reconcilers interpret.
package descriptor

import (
	"strings"
)

// ParamType is the declared type of a task parameter
type ParamType string

const (
	TypeString ParamType = "string"
	TypeInt    ParamType = "int"
	TypeFloat  ParamType = "float"
	TypeBool   ParamType = "bool"
	TypeList   ParamType = "list"
	TypeDict   ParamType = "dict"
	TypeEnum   ParamType = "enum"
	// TypeRaw accepts any value unchanged
	TypeRaw ParamType = "raw"
)

// Operation kinds a descriptor may expose
const (
	OpGet    = "get"
	OpPost   = "post"
	OpPut    = "put"
	OpDelete = "delete"
)

// Reconcile directions. Descriptor states are aliases of these.
const (
	StatePresent = "present"
	StateAbsent  = "absent"
	StateQuery   = "query"
	StateMerged  = "merged"
	StateDeleted = "deleted"
)

// Parameter declares one task argument.
type Parameter struct {
	// Name is the user-facing key
	Name string `yaml:"name" validate:"required"`
	// APIName is the key in the controller's casing; defaults to Name
	APIName  string      `yaml:"apiName,omitempty"`
	Type     ParamType   `yaml:"type" validate:"required,oneof=string int float bool list dict enum raw"`
	Elements ParamType   `yaml:"elements,omitempty" validate:"omitempty,oneof=string int float bool list dict enum raw"`
	Required bool        `yaml:"required,omitempty"`
	Default  interface{} `yaml:"default,omitempty"`
	Choices  []string    `yaml:"choices,omitempty"`
	// CaseInsensitive makes Choices match regardless of case
	CaseInsensitive bool     `yaml:"caseInsensitive,omitempty"`
	Aliases         []string `yaml:"aliases,omitempty"`
	// NoLog marks secrets that are masked in diffs and logs
	NoLog       bool        `yaml:"noLog,omitempty"`
	Options     []Parameter `yaml:"options,omitempty" validate:"dive"`
	Constraints Constraints `yaml:"constraints,omitempty"`
}

// Key returns the canonical key used in the controller payload
func (p *Parameter) Key() string {
	if p.APIName != "" {
		return p.APIName
	}
	return p.Name
}

// Constraints are cross-field rules over sibling parameters. Field names are
// user-facing names; dotted paths reach into nested mappings.
type Constraints struct {
	RequiredIf        []RequiredIf `yaml:"requiredIf,omitempty" validate:"dive"`
	RequiredOneOf     [][]string   `yaml:"requiredOneOf,omitempty" validate:"dive,min=2"`
	MutuallyExclusive [][]string   `yaml:"mutuallyExclusive,omitempty" validate:"dive,min=2"`
	RequiredTogether  [][]string   `yaml:"requiredTogether,omitempty" validate:"dive,min=2"`
}

// IsZero reports whether no constraint is declared
func (c *Constraints) IsZero() bool {
	return len(c.RequiredIf) == 0 && len(c.RequiredOneOf) == 0 &&
		len(c.MutuallyExclusive) == 0 && len(c.RequiredTogether) == 0
}

// RequiredIf makes Requires mandatory when Key equals Value, or when the CEL
// Expression evaluates to true. Exactly one of Key or Expression is set.
type RequiredIf struct {
	Key        string      `yaml:"key,omitempty"`
	Value      interface{} `yaml:"value,omitempty"`
	Expression string      `yaml:"expression,omitempty"`
	Requires   []string    `yaml:"requires" validate:"required,min=1"`
}

// Paging describes how a list operation advances
type Paging struct {
	OffsetParam string `yaml:"offsetParam,omitempty"`
	LimitParam  string `yaml:"limitParam,omitempty"`
	MaxPageSize int    `yaml:"maxPageSize,omitempty" validate:"omitempty,min=1"`
}

// Response describes where list items and async handles live in the body
type Response struct {
	// Items is the dot path of the record list; defaults to "response".
	// "." selects the body itself.
	Items string `yaml:"items,omitempty"`
	// Async marks operations that return an execution handle
	Async bool `yaml:"async,omitempty"`
}

// Variant overrides an operation for controllers whose version satisfies
// the semver constraint in Version.
type Variant struct {
	Version  string `yaml:"version" validate:"required"`
	Function string `yaml:"function,omitempty"`
	Method   string `yaml:"method,omitempty" validate:"omitempty,oneof=GET POST PUT DELETE"`
	Path     string `yaml:"path,omitempty" validate:"omitempty,startswith=/"`
	// Rename maps canonical parameter keys to the keys this variant expects
	Rename   map[string]string `yaml:"rename,omitempty"`
	Response *Response         `yaml:"response,omitempty"`
}

// Operation binds one SDK function to an HTTP verb and URL template.
type Operation struct {
	Function    string      `yaml:"function" validate:"required"`
	Method      string      `yaml:"method" validate:"required,oneof=GET POST PUT DELETE"`
	Path        string      `yaml:"path" validate:"required,startswith=/"`
	Parameters  []Parameter `yaml:"parameters,omitempty" validate:"dive"`
	Constraints Constraints `yaml:"constraints,omitempty"`
	// Bind maps URL placeholders to record paths when they differ in name
	Bind map[string]string `yaml:"bind,omitempty"`
	// IdempotencyKey marks POSTs that accept an idempotency key header
	IdempotencyKey bool      `yaml:"idempotencyKey,omitempty"`
	Paging         *Paging   `yaml:"paging,omitempty"`
	Response       Response  `yaml:"response,omitempty"`
	Variants       []Variant `yaml:"variants,omitempty" validate:"dive"`
}

// Modifies reports whether the operation changes controller state
func (o *Operation) Modifies() bool {
	return o.Method != "GET"
}

// ItemsPath returns the dot path of the record list in a response
func (o *Operation) ItemsPath() string {
	if o.Response.Items != "" {
		return o.Response.Items
	}
	return "response"
}

// PathParams returns the {placeholder} names of the URL template in order
func (o *Operation) PathParams() []string {
	var names []string
	rest := o.Path
	for {
		start := strings.IndexByte(rest, '{')
		if start < 0 {
			return names
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			return names
		}
		names = append(names, rest[start+1:start+end])
		rest = rest[start+end+1:]
	}
}

// Identity describes how a desired record is located on the controller.
type Identity struct {
	// ID is the observed path of the controller-assigned primary key
	ID string `yaml:"id,omitempty"`
	// Name is the desired path of the human-readable name
	Name string `yaml:"name,omitempty"`
	// Lookup maps get query parameters to desired paths
	Lookup map[string]string `yaml:"lookup,omitempty"`
	// Match lists desired paths that must all equal the observed record
	Match []string `yaml:"match,omitempty"`
}

// IDPath returns the observed primary key path, "id" by default
func (i *Identity) IDPath() string {
	if i.ID != "" {
		return i.ID
	}
	return "id"
}

// ListMember describes how the diff engine treats a list-typed field.
type ListMember struct {
	// Key orders the list canonically and identifies its members
	Key string `yaml:"key,omitempty"`
	// Memberwise computes add/update/remove sets instead of replacing the list
	Memberwise bool `yaml:"memberwise,omitempty"`
	// Purge removes observed members missing from the desired list
	Purge bool `yaml:"purge,omitempty"`
	// Set sorts scalar lists so order is irrelevant
	Set bool `yaml:"set,omitempty"`
}

// StatusSynonyms maps controller status strings to SUCCESS and FAILURE for
// controller versions satisfying the Version constraint.
type StatusSynonyms struct {
	Version string   `yaml:"version" validate:"required"`
	Success []string `yaml:"success,omitempty"`
	Failure []string `yaml:"failure,omitempty"`
}

// VersionHint carries version-dependent behavior for the task tracker
type VersionHint struct {
	StatusSynonyms []StatusSynonyms `yaml:"statusSynonyms,omitempty" validate:"dive"`
}

// Observed describes how a raw controller record is projected into the
// desired record's shape before comparison.
type Observed struct {
	// Root is the dot path, inside each record, holding the comparable fields
	Root string `yaml:"root,omitempty"`
}

// Body describes how a desired record is wrapped for POST and PUT
type Body struct {
	// Root nests the record under a dot path ("profileDetails")
	Root string `yaml:"root,omitempty"`
	// List wraps the record (after Root) in a single-element list
	List bool `yaml:"list,omitempty"`
	// IDField copies the observed id into the update body under this key
	IDField string `yaml:"idField,omitempty"`
	// UpdateBase lists desired paths always sent on update
	UpdateBase []string `yaml:"updateBase,omitempty"`
	// FullUpdate sends the whole desired record on update instead of the delta
	FullUpdate bool `yaml:"fullUpdate,omitempty"`
	// MergeObserved overlays the update onto the observed record
	MergeObserved bool `yaml:"mergeObserved,omitempty"`
	// Omit lists desired paths that are never sent
	Omit []string `yaml:"omit,omitempty"`
}

// Descriptor is the static definition of one resource kind.
type Descriptor struct {
	Family      string `yaml:"family" validate:"required"`
	Name        string `yaml:"name" validate:"required"`
	DisplayName string `yaml:"displayName,omitempty"`
	// Hooks selects resource-specific reconcile behavior; empty means generic
	Hooks string `yaml:"hooks,omitempty" validate:"omitempty,oneof=generic site"`
	// States are the allowed values of the state selector; the first is the default
	States     []string              `yaml:"states" validate:"required,min=1,dive,oneof=merged deleted present absent query"`
	Operations map[string]*Operation `yaml:"operations" validate:"required,min=1,dive,keys,oneof=get post put delete,endkeys,required"`

	Parameters       []Parameter           `yaml:"parameters,omitempty" validate:"dive"`
	Constraints      Constraints           `yaml:"constraints,omitempty"`
	RequiredForState map[string][]string   `yaml:"requiredForState,omitempty"`
	Identity         Identity              `yaml:"identity,omitempty"`
	Comparable       []string              `yaml:"comparable,omitempty"`
	Immutable        []string              `yaml:"immutable,omitempty"`
	WriteOnly        []string              `yaml:"writeOnly,omitempty"`
	Aliases          map[string]string     `yaml:"aliases,omitempty"`
	ListMembers      map[string]ListMember `yaml:"listMembers,omitempty"`
	AbsentMeansEmpty []string              `yaml:"absentMeansEmpty,omitempty"`
	AllowReplace     bool                  `yaml:"allowReplace,omitempty"`
	Observed         Observed              `yaml:"observed,omitempty"`
	Body             Body                  `yaml:"body,omitempty"`
	VersionHint      VersionHint           `yaml:"versionHint,omitempty"`
}

// Title returns the display name used in result messages
func (d *Descriptor) Title() string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return strings.ReplaceAll(d.Name, "_", " ")
}

// Operation returns the operation of the given kind, or nil
func (d *Descriptor) Operation(kind string) *Operation {
	if d.Operations == nil {
		return nil
	}
	return d.Operations[kind]
}

// AllowsState reports whether state is one of the declared states
func (d *Descriptor) AllowsState(state string) bool {
	for _, s := range d.States {
		if s == state {
			return true
		}
	}
	return false
}

// DefaultState returns the state used when the task omits one
func (d *Descriptor) DefaultState() string {
	if len(d.States) == 0 {
		return ""
	}
	return d.States[0]
}

// IsReadOnly reports whether the resource only supports the read path
func (d *Descriptor) IsReadOnly() bool {
	return len(d.States) == 1 && d.States[0] == StateQuery
}

// Direction maps a declared state to present, absent or query
func Direction(state string) string {
	switch state {
	case StateMerged, StatePresent:
		return StatePresent
	case StateDeleted, StateAbsent:
		return StateAbsent
	case StateQuery:
		return StateQuery
	}
	return ""
}

// AliasOf returns the observed path for a desired path
func (d *Descriptor) AliasOf(path string) string {
	if alias, ok := d.Aliases[path]; ok && alias != "" {
		return alias
	}
	return path
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// IsImmutable reports whether path is declared immutable
func (d *Descriptor) IsImmutable(path string) bool { return contains(d.Immutable, path) }

// IsWriteOnly reports whether path is never read back from the controller
func (d *Descriptor) IsWriteOnly(path string) bool { return contains(d.WriteOnly, path) }

// IsAbsentMeansEmpty reports whether an absent list equals an empty one
func (d *Descriptor) IsAbsentMeansEmpty(path string) bool { return contains(d.AbsentMeansEmpty, path) }
