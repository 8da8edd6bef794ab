package hydrate

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/shopspring/decimal"
)

var errNilIdentity = errors.New("constructor returned nil identity")

//Stats counts what a Hydrator has consumed and produced.
type Stats struct {
	Rows    int
	Records int
}

//Hydrator turns rows laid out by a column plan into a deduplicated forest of records. Rows are consumed one at a
//time so a cursor can be streamed straight into it; state is private to the Hydrator and is dropped with it.
//A Hydrator is not safe for concurrent use, independent Hydrators share nothing.
type Hydrator struct {
	tags []ColumnTag
	//groupEnd[i] is the index after the last scalar belonging to identity column i
	groupEnd []int
	rootSlot string

	identity map[identityKey]*Record
	current  map[string]*Record
	members  map[memberKey]struct{}

	roots    []*Record
	rootSeen map[*Record]struct{}

	stats Stats
	err   error
}

type identityKey struct {
	entity string
	value  interface{}
}

type memberKey struct {
	parent *Record
	field  string
	child  *Record
}

//NewHydrator checks the shape of tags and returns a Hydrator ready to receive rows.
func NewHydrator(tags []ColumnTag) (*Hydrator, error) {
	h := &Hydrator{
		tags:     tags,
		groupEnd: make([]int, len(tags)),
		identity: make(map[identityKey]*Record),
		current:  make(map[string]*Record),
		members:  make(map[memberKey]struct{}),
		rootSeen: make(map[*Record]struct{}),
	}
	if len(tags) == 0 {
		return h, nil
	}

	if !tags[0].IsPrimaryKey {
		return nil, fmt.Errorf("%w: first column must be the root identity column", ErrInvalidPlan)
	}
	if tags[0].HasParent() {
		return nil, fmt.Errorf("%w: root %s has a parent", ErrInvalidPlan, tags[0].EntityType)
	}
	h.rootSlot = tags[0].slot()

	slots := make(map[string]struct{})
	group := -1
	for i, tag := range tags {
		if tag.EntityType == "" {
			return nil, fmt.Errorf("%w: column %d has no entity type", ErrInvalidPlan, i)
		}
		if !tag.Kind.valid() || (tag.Kind == KindWrapped && tag.Wrap == nil) {
			return nil, fmt.Errorf("%w: column %d has unusable kind %s", ErrInvalidPlan, i, tag.Kind)
		}

		if tag.IsPrimaryKey {
			if group >= 0 {
				h.groupEnd[group] = i
			}
			group = i
			if _, ok := slots[tag.slot()]; ok {
				return nil, fmt.Errorf("%w: %s selected twice", ErrInvalidPlan, tag.slot())
			}
			if tag.HasParent() {
				if _, ok := slots[tag.parentSlot()]; !ok {
					return nil, fmt.Errorf("%w: parent %s of %s is not selected before it", ErrInvalidPlan, tag.parentSlot(), tag.slot())
				}
				if tag.Cardinality != Single && tag.Cardinality != Many {
					return nil, fmt.Errorf("%w: column %d has no cardinality", ErrInvalidPlan, i)
				}
			}
			slots[tag.slot()] = struct{}{}
			continue
		}

		if tag.slot() != tags[group].slot() {
			return nil, fmt.Errorf("%w: column %d of %s follows identity column of %s", ErrInvalidPlan, i, tag.slot(), tags[group].slot())
		}
		if tag.Field == "" {
			return nil, fmt.Errorf("%w: column %d has no field", ErrInvalidPlan, i)
		}
	}
	h.groupEnd[group] = len(tags)

	return h, nil
}

//Add hydrates one row. After the first error the Hydrator is unusable and Result returns nil.
func (h *Hydrator) Add(row []interface{}) error {
	if h.err != nil {
		return h.err
	}
	if err := h.add(row); err != nil {
		h.err = err
		return err
	}
	return nil
}

func (h *Hydrator) add(row []interface{}) error {
	index := h.stats.Rows
	h.stats.Rows++
	if len(row) != len(h.tags) {
		return &RowShapeError{Row: index, Want: len(h.tags), Got: len(row)}
	}

	for k := range h.current {
		delete(h.current, k)
	}

	for i := 0; i < len(h.tags); {
		end := h.groupEnd[i]

		rec, err := h.identify(i, row[i])
		if err != nil {
			return err
		}
		if rec == nil {
			//absent entity, its scalars carry nothing for this row
			i = end
			continue
		}

		for j := i + 1; j < end; j++ {
			st := &h.tags[j]
			v, err := coerce(st.Kind, st.Wrap, row[j])
			if err != nil {
				return &CoercionError{Entity: st.EntityType, Field: st.Field, Kind: st.Kind, Value: row[j], Err: err}
			}
			rec.Set(st.Field, v)
		}
		i = end
	}

	return nil
}

//identify handles an identity column: it returns the instance for the row, creating it on first sight and linking
//it to its parent, or nil when the joined entity is absent from this row.
func (h *Hydrator) identify(i int, raw interface{}) (*Record, error) {
	tag := &h.tags[i]
	var parent *Record
	if tag.HasParent() {
		parent = h.current[tag.parentSlot()]
	}

	if raw == nil {
		if parent != nil && !parent.Has(tag.ParentField) {
			if tag.Cardinality == Many {
				parent.Set(tag.ParentField, []*Record{})
			} else {
				parent.Set(tag.ParentField, nil)
			}
		}
		return nil, nil
	}

	value := raw
	if tag.Field != "" {
		v, err := coerce(tag.Kind, tag.Wrap, raw)
		if err == nil && v == nil {
			err = errNilIdentity
		}
		if err != nil {
			return nil, &CoercionError{Entity: tag.EntityType, Field: tag.Field, Kind: tag.Kind, Value: raw, Err: err}
		}
		value = v
	}

	key := identityKey{entity: tag.EntityType, value: identityValue(value)}
	rec, ok := h.identity[key]
	if !ok {
		rec = newRecord(tag.EntityType)
		if tag.Field != "" {
			rec.Set(tag.Field, value)
		}
		for j := i + 1; j < h.groupEnd[i]; j++ {
			rec.Set(h.tags[j].Field, h.tags[j].Kind.zeroValue())
		}
		h.identity[key] = rec
		h.stats.Records++
	}
	h.current[tag.slot()] = rec

	if tag.slot() == h.rootSlot {
		if _, seen := h.rootSeen[rec]; !seen {
			h.rootSeen[rec] = struct{}{}
			h.roots = append(h.roots, rec)
		}
	}

	if parent == nil {
		return rec, nil
	}

	if tag.Cardinality == Many {
		mk := memberKey{parent: parent, field: tag.ParentField, child: rec}
		if _, ok := h.members[mk]; !ok {
			h.members[mk] = struct{}{}
			list, _ := parent.values[tag.ParentField].([]*Record)
			parent.Set(tag.ParentField, append(list, rec))
		}
	} else {
		parent.Set(tag.ParentField, rec)
	}

	return rec, nil
}

//Result returns the root records in the order their identity values were first seen. It returns nil once an error
//has occurred, a partially hydrated forest is never handed out.
func (h *Hydrator) Result() []*Record {
	if h.err != nil {
		return nil
	}
	return append(make([]*Record, 0, len(h.roots)), h.roots...)
}

//Stats returns the number of rows consumed and records created so far.
func (h *Hydrator) Stats() Stats {
	return h.stats
}

//Hydrate turns rows selected with a column plan into the ordered list of root records. Repeated rows caused by
//to-many joins never produce repeated instances or list entries, and many relations without a match are empty
//lists rather than nil. Any error aborts the whole batch.
func Hydrate(tags []ColumnTag, rows [][]interface{}) ([]*Record, error) {
	h, err := NewHydrator(tags)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := h.Add(row); err != nil {
			return nil, err
		}
	}
	return h.Result(), nil
}

//identityValue normalises a key value so equal keys delivered in different representations collide
func identityValue(v interface{}) interface{} {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case decimal.Decimal:
		return t.String()
	}
	if reflect.ValueOf(v).Comparable() {
		return v
	}
	return fmt.Sprintf("%T:%v", v, v)
}
