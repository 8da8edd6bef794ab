package hydrate

import "fmt"

//ColumnTag describes one projected column: which entity it belongs to, whether it is that entity's identity column,
//which field it fills and how the entity hangs off its parent.
type ColumnTag struct {
	EntityType   string
	Alias        string
	IsPrimaryKey bool

	//Field is empty for an identity column whose value is not stored on the instance
	Field string
	Kind  ValueKind
	Wrap  func(interface{}) (interface{}, error)

	//parent linkage, only set on identity columns of entities reached through a relation
	ParentEntityType string
	ParentAlias      string
	ParentField      string
	Cardinality      Cardinality
}

//HasParent reports whether the tag's entity is reached through a relation.
func (t ColumnTag) HasParent() bool {
	return t.ParentField != ""
}

//slot is the key of the per-row scratch entry the tag reads and writes
func (t ColumnTag) slot() string {
	if t.Alias != "" {
		return t.Alias
	}
	return t.EntityType
}

func (t ColumnTag) parentSlot() string {
	if t.ParentAlias != "" {
		return t.ParentAlias
	}
	return t.ParentEntityType
}

//ColumnPlan is the ordered list of column tags and the matching select list. Rows hydrated with Tags must have been
//produced by a query selecting Projection, in that order.
type ColumnPlan struct {
	Tags       []ColumnTag
	Projection []string
}

//BuildColumnPlan emits, for every alias in order, its identity column followed by one column per scalar field.
//A scalar stored in the identity column is carried by the identity tag instead of being selected twice.
func BuildColumnPlan(nodes []AliasNode) (ColumnPlan, error) {
	var plan ColumnPlan
	if len(nodes) == 0 {
		return plan, fmt.Errorf("%w: no tables to select from", ErrInvalidPlan)
	}

	entityOf := make(map[string]string, len(nodes))
	for i, an := range nodes {
		if an.Node == nil {
			return ColumnPlan{}, &MetadataError{Entity: an.Alias, Msg: "alias without a relation node"}
		}
		if err := an.Node.validateSelf(); err != nil {
			return ColumnPlan{}, err
		}
		if i == 0 && an.Relation != nil {
			return ColumnPlan{}, fmt.Errorf("%w: root alias %s has a parent relation", ErrInvalidPlan, an.Alias)
		}
		entityOf[an.Alias] = an.Node.EntityType

		key := ColumnTag{
			EntityType:   an.Node.EntityType,
			Alias:        an.Alias,
			IsPrimaryKey: true,
		}
		if an.Relation != nil {
			parentType, ok := entityOf[an.Parent]
			if !ok {
				return ColumnPlan{}, fmt.Errorf("%w: alias %s extends %s which is not selected before it", ErrInvalidPlan, an.Alias, an.Parent)
			}
			key.ParentEntityType = parentType
			key.ParentAlias = an.Parent
			key.ParentField = an.Relation.Name
			key.Cardinality = an.Relation.Cardinality
		}

		//the identity column goes first, scalars are appended behind it in declaration order
		keyAt := len(plan.Tags)
		plan.Tags = append(plan.Tags, key)
		plan.Projection = append(plan.Projection, an.Alias+"."+an.Node.PrimaryKeyColumn)

		for _, f := range an.Node.ScalarFields {
			if f.Column == an.Node.PrimaryKeyColumn {
				plan.Tags[keyAt].Field = f.Name
				plan.Tags[keyAt].Kind = f.Kind
				plan.Tags[keyAt].Wrap = f.Wrap
				continue
			}
			plan.Tags = append(plan.Tags, ColumnTag{
				EntityType: an.Node.EntityType,
				Alias:      an.Alias,
				Field:      f.Name,
				Kind:       f.Kind,
				Wrap:       f.Wrap,
			})
			plan.Projection = append(plan.Projection, an.Alias+"."+f.Column)
		}
	}

	return plan, nil
}
