package hydrate

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
	"github.com/shopspring/decimal"
)

var (
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
	timeType    = reflect.TypeOf(time.Time{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
	uuidType    = reflect.TypeOf(uuid.UUID{})
)

//modelTask is a pending node of the worklist used by LoadModel
type modelTask struct {
	node *RelationNode
	ms   *gorm.ModelStruct
	//ancestors holds the model types on the path from the root, used to reject cycles
	ancestors []reflect.Type
	//paths holds the remaining relation paths requested below this node, nil means follow everything
	paths map[string][]string
	//path is the dotted field path of this node, used in errors
	path string
}

//LoadModel builds the relation tree for a gorm model. Table and column names, primary keys and relationships are
//taken from gorm's model struct, so it must be given a pointer or value of a struct registered the usual gorm way.
//
//paths select the relationships to follow using the dotted field names gorm's Preload takes, e.g.
//"Sections.Exercises". Without paths every has_one, belongs_to and has_many relationship is followed, which fails
//for models referring back to an ancestor. Paths may revisit a model, e.g. "Children.Children".
//many_to_many relationships go through a join table the hydration can not see and are rejected when requested.
func LoadModel(db *gorm.DB, model interface{}, paths ...string) (*RelationNode, error) {
	if db == nil {
		return nil, &MetadataError{Msg: "gorm.DB is required to resolve table names"}
	}

	rootPaths, err := splitPaths(paths)
	if err != nil {
		return nil, err
	}

	ms := db.NewScope(model).GetModelStruct()
	if ms.ModelType == nil || ms.ModelType.Kind() != reflect.Struct {
		return nil, &MetadataError{Msg: fmt.Sprintf("%T is not a gorm model", model)}
	}

	root := &RelationNode{}
	queue := []modelTask{{
		node:      root,
		ms:        ms,
		ancestors: []reflect.Type{ms.ModelType},
		paths:     rootPaths,
		path:      ms.ModelType.Name(),
	}}

	for len(queue) > 0 {
		task := queue[0]
		queue = queue[1:]

		children, err := fillNode(db, task)
		if err != nil {
			return nil, err
		}
		queue = append(queue, children...)
	}

	return root, nil
}

//fillNode copies the metadata of one model struct into its node and returns tasks for the relations to follow
func fillNode(db *gorm.DB, task modelTask) ([]modelTask, error) {
	ms := task.ms
	entity := ms.ModelType.String()
	node := task.node

	if len(ms.PrimaryFields) != 1 {
		return nil, &MetadataError{
			Entity: entity,
			Msg:    fmt.Sprintf("exactly one primary key field is required, found %d", len(ms.PrimaryFields)),
		}
	}

	node.EntityType = entity
	node.TableName = ms.TableName(db)
	node.PrimaryKeyColumn = ms.PrimaryFields[0].DBName

	wanted := task.paths
	var children []modelTask
	for _, f := range ms.StructFields {
		if f.IsIgnored {
			continue
		}

		if f.Relationship != nil {
			rest, follow := wanted[f.Name]
			if wanted != nil && !follow {
				continue
			}
			if wanted != nil {
				delete(wanted, f.Name)
			}

			child, err := relationTask(db, task, f, rest, follow)
			if err != nil {
				return nil, err
			}
			if child == nil {
				continue
			}
			children = append(children, *child)
			continue
		}

		if !f.IsNormal {
			continue
		}

		kind, err := kindOf(f.Struct.Type)
		if err != nil {
			return nil, &MetadataError{Entity: entity, Field: f.Name, Msg: "unsupported field type", Err: err}
		}
		node.ScalarFields = append(node.ScalarFields, ScalarField{Name: f.Name, Column: f.DBName, Kind: kind})
	}

	for name := range wanted {
		return nil, &MetadataError{Entity: entity, Field: name, Msg: fmt.Sprintf("%s.%s is not a relationship", task.path, name)}
	}

	return children, nil
}

//relationTask appends the relation for field f to the task's node and returns the task loading its target. A nil
//task without error means the relationship is skipped.
func relationTask(db *gorm.DB, task modelTask, f *gorm.StructField, rest []string, requested bool) (*modelTask, error) {
	entity := task.ms.ModelType.String()

	var card Cardinality
	switch f.Relationship.Kind {
	case "has_one", "belongs_to":
		card = Single
	case "has_many":
		card = Many
	default:
		if !requested {
			return nil, nil
		}
		return nil, &MetadataError{Entity: entity, Field: f.Name, Msg: fmt.Sprintf("%s relationships are not supported", f.Relationship.Kind)}
	}

	childPaths, err := splitPaths(rest)
	if err != nil {
		return nil, err
	}
	if requested && len(rest) == 0 {
		//a path ending here loads the target without further relationships
		childPaths = map[string][]string{}
	}

	target := baseType(f.Struct.Type)
	//explicit paths are finite, only unrestricted expansion can loop
	for _, t := range task.ancestors {
		if t == target && childPaths == nil {
			names := make([]string, 0, len(task.ancestors)+1)
			for _, a := range task.ancestors {
				names = append(names, a.Name())
			}
			names = append(names, target.Name())
			return nil, &MetadataError{Entity: entity, Field: f.Name, Msg: "relation cycle " + strings.Join(names, " -> ")}
		}
	}

	child := &RelationNode{}
	task.node.Relations = append(task.node.Relations, Relation{Name: f.Name, Cardinality: card, Target: child})

	ancestors := append(append([]reflect.Type(nil), task.ancestors...), target)
	return &modelTask{
		node:      child,
		ms:        db.NewScope(reflect.New(target).Interface()).GetModelStruct(),
		ancestors: ancestors,
		paths:     childPaths,
		path:      task.path + "." + f.Name,
	}, nil
}

//splitPaths groups dotted paths by their first segment. nil input means no restriction.
func splitPaths(paths []string) (map[string][]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	ret := make(map[string][]string, len(paths))
	for _, p := range paths {
		head, tail, _ := strings.Cut(p, ".")
		if head == "" {
			return nil, &MetadataError{Msg: fmt.Sprintf("invalid relation path %q", p)}
		}
		if _, ok := ret[head]; !ok {
			ret[head] = nil
		}
		if tail != "" {
			ret[head] = append(ret[head], tail)
		}
	}
	return ret, nil
}

//kindOf maps the Go type of a model field onto the value kind used to coerce its column
func kindOf(t reflect.Type) (ValueKind, error) {
	if reflect.PtrTo(t).Implements(scannerType) && t != timeType && t != decimalType && t != uuidType {
		//decoding hands the raw value to the field's Scan method
		return KindRaw, nil
	}

	base := t
	for base.Kind() == reflect.Ptr {
		base = base.Elem()
	}

	switch base {
	case timeType:
		return KindTime, nil
	case decimalType:
		return KindDecimal, nil
	case uuidType:
		return KindUUID, nil
	}

	switch base.Kind() {
	case reflect.String:
		return KindString, nil
	case reflect.Bool:
		return KindBool, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return KindInt, nil
	case reflect.Float32, reflect.Float64:
		return KindFloat, nil
	case reflect.Slice:
		if base.Elem().Kind() == reflect.Uint8 {
			return KindBytes, nil
		}
	}

	if reflect.PtrTo(base).Implements(scannerType) {
		return KindRaw, nil
	}
	return 0, fmt.Errorf("%s has no value kind", t)
}

//baseType will return the fully unwrapped type of slice
func baseType(t reflect.Type) reflect.Type {
	switch t.Kind() {
	case reflect.Array, reflect.Ptr, reflect.Slice:
		return baseType(t.Elem())
	}
	return t
}
