package hydrate

import (
	"fmt"
	"strings"
)

//Cardinality tells whether a relation field holds one instance or an ordered list of instances.
type Cardinality int

const (
	//Single relations hold one instance or nil
	Single Cardinality = iota + 1
	//Many relations hold a list of instances, empty when nothing matched
	Many
)

func (c Cardinality) String() string {
	switch c {
	case Single:
		return "single"
	case Many:
		return "many"
	}
	return fmt.Sprintf("Cardinality(%d)", int(c))
}

//ParseCardinality reads "single" or "many", as written in schema files. "one" and "list" are accepted as well.
func ParseCardinality(s string) (Cardinality, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single", "one":
		return Single, nil
	case "many", "list":
		return Many, nil
	}
	return 0, fmt.Errorf("unknown cardinality %q", s)
}

//UnmarshalText implements encoding.TextUnmarshaler.
func (c *Cardinality) UnmarshalText(text []byte) error {
	parsed, err := ParseCardinality(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

//RelationNode describes one record type taking part in a query: the table it lives in, its identity column,
//the scalar fields to load and the relations reachable from it.
//Nodes are built once per query shape by a metadata collaborator (see LoadModel and Schema.Tree) and must not be
//modified once they are handed to ResolveJoins.
type RelationNode struct {
	EntityType       string
	TableName        string
	PrimaryKeyColumn string
	ScalarFields     []ScalarField
	Relations        []Relation
}

//ScalarField maps a column of the node's table onto a named field.
type ScalarField struct {
	Name   string
	Column string
	Kind   ValueKind
	//Wrap constructs the field value from the raw column value, required for KindWrapped
	Wrap func(interface{}) (interface{}, error)
}

//Relation is a field of a node holding instances of another node.
type Relation struct {
	Name        string
	Cardinality Cardinality
	Target      *RelationNode
}

//Validate checks the node and everything reachable from it. The relation graph must be finite and acyclic; a node
//may be shared by several parents but may never reach itself.
func (n *RelationNode) Validate() error {
	if n == nil {
		return &MetadataError{Msg: "nil relation node"}
	}
	if err := n.validateSelf(); err != nil {
		return err
	}

	const (
		visiting = 1
		done     = 2
	)

	type frame struct {
		node *RelationNode
		next int
	}

	state := map[*RelationNode]int{n: visiting}
	stack := []*frame{{node: n}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.next == len(top.node.Relations) {
			state[top.node] = done
			stack = stack[:len(stack)-1]
			continue
		}
		rel := top.node.Relations[top.next]
		top.next++

		switch state[rel.Target] {
		case visiting:
			path := make([]string, 0, len(stack)+1)
			for _, f := range stack {
				path = append(path, f.node.EntityType)
			}
			path = append(path, rel.Target.EntityType)
			return &MetadataError{
				Entity: top.node.EntityType,
				Field:  rel.Name,
				Msg:    "relation cycle " + strings.Join(path, " -> "),
			}
		case done:
			continue
		}

		if err := rel.Target.validateSelf(); err != nil {
			return err
		}
		state[rel.Target] = visiting
		stack = append(stack, &frame{node: rel.Target})
	}

	return nil
}

//validateSelf checks the node's own attributes without following relations
func (n *RelationNode) validateSelf() error {
	fail := func(field, msg string) error {
		return &MetadataError{Entity: n.EntityType, Field: field, Msg: msg}
	}

	switch {
	case n.EntityType == "":
		return &MetadataError{Entity: n.TableName, Msg: "missing entity type"}
	case n.TableName == "":
		return fail("", "missing table name")
	case n.PrimaryKeyColumn == "":
		return fail("", "missing primary key column")
	}

	names := make(map[string]struct{}, len(n.ScalarFields)+len(n.Relations))
	claim := func(name string) error {
		if name == "" {
			return fail("", "field without a name")
		}
		if _, ok := names[name]; ok {
			return fail(name, "declared more than once")
		}
		names[name] = struct{}{}
		return nil
	}

	for _, f := range n.ScalarFields {
		if err := claim(f.Name); err != nil {
			return err
		}
		if f.Column == "" {
			return fail(f.Name, "missing column")
		}
		if !f.Kind.valid() {
			return fail(f.Name, fmt.Sprintf("unsupported value kind %s", f.Kind))
		}
		if f.Kind == KindWrapped && f.Wrap == nil {
			return fail(f.Name, "wrapped kind without a constructor")
		}
	}

	for _, r := range n.Relations {
		if err := claim(r.Name); err != nil {
			return err
		}
		if r.Cardinality != Single && r.Cardinality != Many {
			return fail(r.Name, fmt.Sprintf("unsupported cardinality %s", r.Cardinality))
		}
		if r.Target == nil {
			return fail(r.Name, "relation without a target")
		}
	}

	return nil
}

//matchesTable reports whether a table reference from a query names this node's table. A schema qualified reference
//matches both "schema.table" and a bare table name.
func (n *RelationNode) matchesTable(schema, name string) bool {
	if strings.EqualFold(n.TableName, name) {
		return true
	}
	return schema != "" && strings.EqualFold(n.TableName, schema+"."+name)
}
