package hydrate

import (
	"errors"
	"fmt"
	"strings"
)

//Sentinel errors. Typed errors below report true for errors.Is against their sentinel.
var (
	ErrJoinResolution = errors.New("hydrate: join resolution failed")
	ErrMetadata       = errors.New("hydrate: invalid metadata")
	ErrRowShape       = errors.New("hydrate: row does not match column plan")
	ErrCoercion       = errors.New("hydrate: value coercion failed")
	ErrInvalidPlan    = errors.New("hydrate: invalid column plan")
	ErrCyclicRecord   = errors.New("hydrate: cyclic record graph")
)

//JoinReason describes why a join could not be matched to the relation tree.
type JoinReason int

const (
	//RootMismatch means the first table of the query is not the root node's table
	RootMismatch JoinReason = iota + 1
	//UnresolvedAlias means no operand of the join condition names an already joined alias
	UnresolvedAlias
	//NoRelation means the parent node has no relation targeting the joined table
	NoRelation
)

func (r JoinReason) String() string {
	switch r {
	case RootMismatch:
		return "root table mismatch"
	case UnresolvedAlias:
		return "unresolved join alias"
	case NoRelation:
		return "no relation for joined table"
	}
	return "unknown"
}

//JoinResolutionError is returned when the join chain of a query does not line up with the declared relation tree.
//It reflects a mismatch between query and metadata and is never worth retrying.
type JoinResolutionError struct {
	Reason JoinReason
	Table  string
	Alias  string
	Detail string
}

func (e *JoinResolutionError) Error() string {
	var sb strings.Builder
	sb.WriteString("hydrate: ")
	sb.WriteString(e.Reason.String())
	if e.Table != "" {
		fmt.Fprintf(&sb, " (table %s", e.Table)
		if e.Alias != "" && e.Alias != e.Table {
			fmt.Fprintf(&sb, " as %s", e.Alias)
		}
		sb.WriteString(")")
	}
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	return sb.String()
}

//Is reports whether target is ErrJoinResolution.
func (e *JoinResolutionError) Is(target error) bool {
	return target == ErrJoinResolution
}

//MetadataError is returned when a relation tree is malformed, e.g. it contains a cycle or an untyped field.
type MetadataError struct {
	Entity string
	Field  string
	Msg    string
	Err    error
}

func (e *MetadataError) Error() string {
	var sb strings.Builder
	sb.WriteString("hydrate: metadata")
	if e.Entity != "" {
		sb.WriteString(" ")
		sb.WriteString(e.Entity)
		if e.Field != "" {
			sb.WriteString(".")
			sb.WriteString(e.Field)
		}
	}
	sb.WriteString(": ")
	sb.WriteString(e.Msg)
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

//Is reports whether target is ErrMetadata.
func (e *MetadataError) Is(target error) bool {
	return target == ErrMetadata
}

func (e *MetadataError) Unwrap() error {
	return e.Err
}

//RowShapeError is returned when a row does not have exactly one value per column tag.
type RowShapeError struct {
	Row  int
	Want int
	Got  int
}

func (e *RowShapeError) Error() string {
	return fmt.Sprintf("hydrate: row %d has %d values, column plan has %d", e.Row, e.Got, e.Want)
}

//Is reports whether target is ErrRowShape.
func (e *RowShapeError) Is(target error) bool {
	return target == ErrRowShape
}

//CoercionError is returned when a raw value can not be converted to the kind declared for its field.
type CoercionError struct {
	Entity string
	Field  string
	Kind   ValueKind
	Value  interface{}
	Err    error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("hydrate: can not convert %v (%T) to %s for %s.%s: %v", e.Value, e.Value, e.Kind, e.Entity, e.Field, e.Err)
}

//Is reports whether target is ErrCoercion.
func (e *CoercionError) Is(target error) bool {
	return target == ErrCoercion
}

func (e *CoercionError) Unwrap() error {
	return e.Err
}

//IsJoinResolution returns true if err is or wraps a JoinResolutionError.
func IsJoinResolution(err error) bool {
	var e *JoinResolutionError
	return errors.As(err, &e)
}

//IsMetadata returns true if err is or wraps a MetadataError.
func IsMetadata(err error) bool {
	var e *MetadataError
	return errors.As(err, &e)
}
