package hydrate

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//Schema is a catalogue of entities read from YAML. It is the metadata source for code that does not have gorm
//models, e.g. the hydrate command:
//
//	entities:
//	  User:
//	    table: users
//	    primary_key: id
//	    fields:
//	      - name: id
//	        kind: int
//	      - name: name
//	        kind: string
//	    relations:
//	      - name: orders
//	        target: Order
//	        cardinality: many
type Schema struct {
	Entities map[string]EntityDef `yaml:"entities"`
}

//EntityDef declares one entity of a Schema.
type EntityDef struct {
	Table      string        `yaml:"table"`
	PrimaryKey string        `yaml:"primary_key"`
	Fields     []FieldDef    `yaml:"fields"`
	Relations  []RelationDef `yaml:"relations"`
}

//FieldDef declares a scalar field. Column defaults to Name.
type FieldDef struct {
	Name   string    `yaml:"name"`
	Column string    `yaml:"column,omitempty"`
	Kind   ValueKind `yaml:"kind,omitempty"`
}

//RelationDef declares a relation to another entity of the same Schema.
type RelationDef struct {
	Name        string      `yaml:"name"`
	Target      string      `yaml:"target"`
	Cardinality Cardinality `yaml:"cardinality"`
}

//ParseSchema decodes a YAML schema. Unknown keys are rejected so typos do not silently drop fields.
func ParseSchema(data []byte) (Schema, error) {
	var s Schema
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return Schema{}, &MetadataError{Msg: "invalid schema", Err: err}
	}
	if len(s.Entities) == 0 {
		return Schema{}, &MetadataError{Msg: "schema declares no entities"}
	}
	return s, nil
}

//LoadSchema reads and parses a schema file.
func LoadSchema(path string) (Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Schema{}, fmt.Errorf("hydrate: read schema: %w", err)
	}
	return ParseSchema(data)
}

//Names returns the declared entity names, sorted.
func (s Schema) Names() []string {
	names := make([]string, 0, len(s.Entities))
	for name := range s.Entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

//Tree builds the relation tree rooted at entity root. Every entity reachable from root gets exactly one node, so an
//entity targeted from several places is shared rather than copied. Relations leading back to an ancestor are
//reported as a MetadataError.
func (s Schema) Tree(root string) (*RelationNode, error) {
	nodes := make(map[string]*RelationNode)
	queue := []string{root}
	nodes[root] = &RelationNode{}

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]

		def, ok := s.Entities[name]
		if !ok {
			return nil, &MetadataError{Entity: name, Msg: "entity is not declared"}
		}

		node := nodes[name]
		node.EntityType = name
		node.TableName = def.Table
		node.PrimaryKeyColumn = def.PrimaryKey

		for _, f := range def.Fields {
			col := f.Column
			if col == "" {
				col = f.Name
			}
			node.ScalarFields = append(node.ScalarFields, ScalarField{Name: f.Name, Column: col, Kind: f.Kind})
		}

		for _, r := range def.Relations {
			if _, ok := s.Entities[r.Target]; !ok {
				return nil, &MetadataError{Entity: name, Field: r.Name, Msg: fmt.Sprintf("unknown target entity %q", r.Target)}
			}
			target, ok := nodes[r.Target]
			if !ok {
				target = &RelationNode{}
				nodes[r.Target] = target
				queue = append(queue, r.Target)
			}
			node.Relations = append(node.Relations, Relation{Name: r.Name, Cardinality: r.Cardinality, Target: target})
		}
	}

	if err := nodes[root].Validate(); err != nil {
		return nil, err
	}
	return nodes[root], nil
}
