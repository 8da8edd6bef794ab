package hydrate

import (
	"fmt"
	"strings"
)

//TableRef is a table as it appears in the FROM or JOIN clause of a query. Alias defaults to Name when empty.
type TableRef struct {
	Schema string
	Name   string
	Alias  string
}

//Ref returns the name the table is referred to by in the rest of the query
func (t TableRef) Ref() string {
	if t.Alias != "" {
		return t.Alias
	}
	return t.Name
}

func (t TableRef) String() string {
	name := t.Name
	if t.Schema != "" {
		name = t.Schema + "." + name
	}
	if t.Alias != "" && t.Alias != t.Name {
		return name + " " + t.Alias
	}
	return name
}

//Operand is one side of a join condition in the form alias.column.
type Operand struct {
	Alias  string
	Column string
}

func (o Operand) String() string {
	return o.Alias + "." + o.Column
}

//Join is a joined table together with the two operands of its join condition.
type Join struct {
	Table TableRef
	Left  Operand
	Right Operand
}

//JoinChain is the root table of a query followed by its joins in the order they appear in the query.
type JoinChain struct {
	Root  TableRef
	Joins []Join
}

//AliasNode binds a query alias to the relation node it realises. Parent and Relation are empty for the root.
type AliasNode struct {
	Alias    string
	Node     *RelationNode
	Parent   string
	Relation *Relation
}

//ResolveJoins works out, for every table of chain, which declared relation it realises. The root table must be the
//root node's table; every join must extend an alias joined before it through one of that alias' relations.
//The result is ordered as the tables were joined, root first, and that order fixes the layout of the column plan.
func ResolveJoins(root *RelationNode, chain JoinChain) ([]AliasNode, error) {
	if err := root.Validate(); err != nil {
		return nil, err
	}

	if !root.matchesTable(chain.Root.Schema, chain.Root.Name) {
		return nil, &JoinResolutionError{
			Reason: RootMismatch,
			Table:  chain.Root.Name,
			Alias:  chain.Root.Ref(),
			Detail: fmt.Sprintf("query must start with FROM %s", root.TableName),
		}
	}

	ret := make([]AliasNode, 0, len(chain.Joins)+1)
	ret = append(ret, AliasNode{Alias: chain.Root.Ref(), Node: root})

	//index into ret by lower cased alias, aliases match case-insensitively like table names
	registered := map[string]int{strings.ToLower(chain.Root.Ref()): 0}
	//relations already realised, keyed by parent alias
	claimed := make(map[string]map[*Relation]struct{})

	for _, j := range chain.Joins {
		alias := j.Table.Ref()
		unresolved := func(detail string) error {
			return &JoinResolutionError{Reason: UnresolvedAlias, Table: j.Table.Name, Alias: alias, Detail: detail}
		}

		if _, ok := registered[strings.ToLower(alias)]; ok {
			return nil, unresolved("alias is already in use")
		}

		//only membership in the registered set decides which operand is the parent side
		var parentAlias, childAlias string
		if _, ok := registered[strings.ToLower(j.Left.Alias)]; ok {
			parentAlias, childAlias = j.Left.Alias, j.Right.Alias
		} else if _, ok := registered[strings.ToLower(j.Right.Alias)]; ok {
			parentAlias, childAlias = j.Right.Alias, j.Left.Alias
		} else {
			return nil, unresolved(fmt.Sprintf("neither %s nor %s refers to a joined table", j.Left, j.Right))
		}
		if !strings.EqualFold(childAlias, alias) {
			return nil, unresolved(fmt.Sprintf("join condition %s = %s does not refer to %s", j.Left, j.Right, alias))
		}

		parent := ret[registered[strings.ToLower(parentAlias)]]
		rel := findRelation(parent.Node, j.Table, claimed[parent.Alias])
		if rel == nil {
			return nil, &JoinResolutionError{
				Reason: NoRelation,
				Table:  j.Table.Name,
				Alias:  alias,
				Detail: fmt.Sprintf("%s has no relation to %s", parent.Node.EntityType, j.Table.Name),
			}
		}

		if claimed[parent.Alias] == nil {
			claimed[parent.Alias] = make(map[*Relation]struct{})
		}
		claimed[parent.Alias][rel] = struct{}{}

		registered[strings.ToLower(alias)] = len(ret)
		ret = append(ret, AliasNode{
			Alias:    alias,
			Node:     rel.Target,
			Parent:   parent.Alias,
			Relation: rel,
		})
	}

	return ret, nil
}

//findRelation returns the first relation of node targeting table that has not been realised by an earlier join
func findRelation(node *RelationNode, table TableRef, claimed map[*Relation]struct{}) *Relation {
	for i := range node.Relations {
		rel := &node.Relations[i]
		if _, ok := claimed[rel]; ok {
			continue
		}
		if rel.Target.matchesTable(table.Schema, table.Name) {
			return rel
		}
	}
	return nil
}
