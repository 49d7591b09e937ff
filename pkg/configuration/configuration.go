// Package configuration describes sets of required or provided resources.
//
// In the simplest form a configuration enumerates available resources,
// optionally with their exact versions. That form suits the provided side.
// The required side may relate versions and combine partial configurations
// into complex expressions:
//
//	required := configuration.Comma(
//		configuration.Comma(
//			configuration.And(
//				configuration.VersionGe(qt, "4.6.5"),
//				configuration.VersionLt(qt, "4.8")),
//			configuration.Exists(gui)),
//		configuration.Not(configuration.Exists(symbian)))
//
//	provided := configuration.Comma(
//		configuration.Exists(gui),
//		configuration.VersionEq(qt, "4.7"))
//
//	if provided.Satisfies(required) {
//		...
//	}
//
// Comma combines like And; it exists so provided-side enumerations read as
// plain lists. The provided side of Satisfies must consist only of Exists
// and VersionEq leaves joined by Comma - anything else there is a bug in
// the calling code and panics.
package configuration

import (
	"QDataServer/pkg/logger"
	"QDataServer/pkg/uid"
)

// Resource represents an entity subject to configuration management. A
// resource is identified by its interned identifier; there is no constraint
// on how the identifier string should look.
type Resource struct {
	id uid.ID
}

// NewResource interns the identifier and returns the resource handle.
func NewResource(id string) Resource {
	return Resource{id: uid.New(id)}
}

// ID returns the interned identifier.
func (r Resource) ID() uid.ID {
	return r.id
}

// IsNull reports whether the resource was created by the zero value.
func (r Resource) IsNull() bool {
	return !r.id.IsValid()
}

// Version describes a resource version: a plain string of printable
// characters. Two versions associated with a resource are compared with the
// compare function registered for that resource, or the default one.
type Version struct {
	spec string
}

// NewVersion constructs a version from its specification string.
func NewVersion(spec string) Version {
	return Version{spec: spec}
}

// Spec returns the specification string passed on construction.
func (v Version) Spec() string {
	return v.spec
}

// IsNull reports whether the version was created by the zero value.
func (v Version) IsNull() bool {
	return v.spec == ""
}

// Type is the kind of a particular configuration expression node.
type Type int

const (
	// TypeNot is satisfied if the child is not satisfied.
	TypeNot Type = iota + 1
	// TypeComma is satisfied if both children are satisfied.
	TypeComma
	// TypeAnd is satisfied if both children are satisfied.
	TypeAnd
	// TypeOr is satisfied if either child is satisfied.
	TypeOr
	// TypeExists is satisfied if the resource exists.
	TypeExists
	// TypeLt is satisfied if the resource exists in a version older than
	// the node's version. Le, Eq, Ne, Ge and Gt follow the same pattern.
	TypeLt
	TypeLe
	TypeEq
	TypeNe
	TypeGe
	TypeGt
)

type node struct {
	typ      Type
	left     Expr
	right    Expr
	resource Resource
	version  Version
}

// Expr is an immutable configuration expression. Copies share the backing
// tree, so copying is cheap. The zero value is the null expression.
type Expr struct {
	d *node
}

// Exists returns an elementary expression declaring resource existence.
func Exists(resource Resource) Expr {
	return Expr{d: &node{typ: TypeExists, resource: resource}}
}

// VersionLt requires the resource in a version older than v.
func VersionLt(resource Resource, v string) Expr {
	return relation(resource, TypeLt, v)
}

// VersionLe requires the resource in a version older than or equal to v.
func VersionLe(resource Resource, v string) Expr {
	return relation(resource, TypeLe, v)
}

// VersionEq requires (or, on the provided side, declares) the resource in
// exactly version v.
func VersionEq(resource Resource, v string) Expr {
	return relation(resource, TypeEq, v)
}

// VersionNe requires the resource in a version other than v.
func VersionNe(resource Resource, v string) Expr {
	return relation(resource, TypeNe, v)
}

// VersionGe requires the resource in version v or newer.
func VersionGe(resource Resource, v string) Expr {
	return relation(resource, TypeGe, v)
}

// VersionGt requires the resource in a version newer than v.
func VersionGt(resource Resource, v string) Expr {
	return relation(resource, TypeGt, v)
}

func relation(resource Resource, typ Type, v string) Expr {
	return Expr{d: &node{typ: typ, resource: resource, version: NewVersion(v)}}
}

// Not negates an expression.
func Not(x Expr) Expr {
	return Expr{d: &node{typ: TypeNot, right: x}}
}

// And combines two expressions; both must be satisfied.
func And(l, r Expr) Expr {
	return Expr{d: &node{typ: TypeAnd, left: l, right: r}}
}

// Or combines two expressions; either satisfies.
func Or(l, r Expr) Expr {
	return Expr{d: &node{typ: TypeOr, left: l, right: r}}
}

// Comma combines two expressions like And. Use it to enumerate provided
// resources.
func Comma(l, r Expr) Expr {
	return Expr{d: &node{typ: TypeComma, left: l, right: r}}
}

// IsNull reports whether the expression was created by the zero value.
func (e Expr) IsNull() bool {
	return e.d == nil
}

// Type asks the kind of this particular expression node.
func (e Expr) Type() Type {
	return e.d.typ
}

// Left is valid for Comma, And and Or expressions.
func (e Expr) Left() Expr {
	switch e.d.typ {
	case TypeComma, TypeAnd, TypeOr:
		return e.d.left
	}
	panic("configuration: Left is only valid for Comma, And and Or expressions")
}

// Right is valid for Comma, And, Or and Not expressions.
func (e Expr) Right() Expr {
	switch e.d.typ {
	case TypeComma, TypeAnd, TypeOr, TypeNot:
		return e.d.right
	}
	panic("configuration: Right is only valid for Comma, And, Or and Not expressions")
}

// Resource is valid for Exists and the version relation expressions.
func (e Expr) Resource() Resource {
	if e.d.typ == TypeExists || (e.d.typ >= TypeLt && e.d.typ <= TypeGt) {
		return e.d.resource
	}
	panic("configuration: Resource is only valid for leaf expressions")
}

// Version is valid for the version relation expressions.
func (e Expr) Version() Version {
	if e.d.typ >= TypeLt && e.d.typ <= TypeGt {
		return e.d.version
	}
	panic("configuration: Version is only valid for version relation expressions")
}

// Equal reports structural equality of two expressions.
func (e Expr) Equal(other Expr) bool {
	if e.d == other.d {
		return true
	}
	if e.d == nil || other.d == nil {
		return false
	}
	if e.d.typ != other.d.typ {
		return false
	}
	switch e.d.typ {
	case TypeNot:
		return e.d.right.Equal(other.d.right)
	case TypeComma, TypeAnd, TypeOr:
		return e.d.left.Equal(other.d.left) && e.d.right.Equal(other.d.right)
	case TypeExists:
		return e.d.resource == other.d.resource
	default:
		return e.d.resource == other.d.resource && e.d.version == other.d.version
	}
}

// Satisfies verifies that the set of resources declared by this expression
// covers any valid combination of resources and versions specified by
// required.
//
// The receiver can only be a plain enumeration of resources and optionally
// their exact versions, built from Exists and VersionEq leaves joined by
// Comma.
func (e Expr) Satisfies(required Expr) bool {
	switch required.d.typ {
	case TypeNot:
		return !e.Satisfies(required.d.right)
	case TypeComma, TypeAnd:
		return e.Satisfies(required.d.left) && e.Satisfies(required.d.right)
	case TypeOr:
		return e.Satisfies(required.d.left) || e.Satisfies(required.d.right)
	case TypeExists:
		switch e.d.typ {
		case TypeComma:
			return e.d.left.Satisfies(required) || e.d.right.Satisfies(required)
		case TypeExists, TypeEq:
			return e.d.resource == required.d.resource
		default:
			panic("configuration: provided side can only use Comma, Exists and VersionEq")
		}
	case TypeLt, TypeLe, TypeEq, TypeNe, TypeGe, TypeGt:
		switch e.d.typ {
		case TypeComma:
			return e.d.left.Satisfies(required) || e.d.right.Satisfies(required)
		case TypeExists:
			if e.d.resource == required.d.resource {
				logger.L().Warn("resource exists but version not specified - cannot satisfy",
					"resource", e.d.resource.ID().String())
			}
			return false
		case TypeEq:
			return e.d.resource == required.d.resource &&
				satisfiesVersion(e.d.resource, e.d.version, required.d.typ, required.d.version)
		default:
			panic("configuration: provided side can only use Comma, Exists and VersionEq")
		}
	}
	panic("configuration: malformed expression")
}

func satisfiesVersion(resource Resource, provided Version, relation Type, required Version) bool {
	cmp := CompareVersions(resource, provided, required)
	switch relation {
	case TypeLt:
		return cmp < 0
	case TypeLe:
		return cmp <= 0
	case TypeEq:
		return cmp == 0
	case TypeNe:
		return cmp != 0
	case TypeGe:
		return cmp >= 0
	case TypeGt:
		return cmp > 0
	}
	panic("configuration: not a version relation")
}
