package hydrate

import (
	"bytes"
	"encoding/json"
	"fmt"
)

//Record is one hydrated instance. Fields keep the order they were first set in: the identity field and scalars
//first, relations as rows reveal them.
//Single relations hold a *Record or nil, many relations hold a []*Record that is never nil once set.
type Record struct {
	Entity string

	names  []string
	values map[string]interface{}
}

func newRecord(entity string) *Record {
	return &Record{Entity: entity, values: make(map[string]interface{})}
}

//Get returns the value of a field and whether it has been set.
func (r *Record) Get(name string) (interface{}, bool) {
	v, ok := r.values[name]
	return v, ok
}

//Has reports whether the field has been set, even to nil.
func (r *Record) Has(name string) bool {
	_, ok := r.values[name]
	return ok
}

//Set assigns a field, appending it to the field order when it is new.
func (r *Record) Set(name string, v interface{}) {
	if r.values == nil {
		r.values = make(map[string]interface{})
	}
	if _, ok := r.values[name]; !ok {
		r.names = append(r.names, name)
	}
	r.values[name] = v
}

//Fields returns the names of all set fields in order.
func (r *Record) Fields() []string {
	return append([]string(nil), r.names...)
}

//One returns a single relation field, nil when unset or empty.
func (r *Record) One(name string) *Record {
	rec, _ := r.values[name].(*Record)
	return rec
}

//Many returns a many relation field, nil when unset.
func (r *Record) Many(name string) []*Record {
	recs, _ := r.values[name].([]*Record)
	return recs
}

//Map converts the record and everything below it into plain nested maps and slices. Records may be shared by
//several parents, but a record reached again below itself, e.g. two users joined as each other's friend, can not be
//flattened and ErrCyclicRecord is returned.
func (r *Record) Map() (map[string]interface{}, error) {
	return r.toMap(make(map[*Record]struct{}))
}

func (r *Record) toMap(path map[*Record]struct{}) (map[string]interface{}, error) {
	path[r] = struct{}{}
	defer delete(path, r)

	ret := make(map[string]interface{}, len(r.names))
	for _, name := range r.names {
		switch v := r.values[name].(type) {
		case *Record:
			if v == nil {
				ret[name] = nil
				continue
			}
			m, err := r.child(v, name, path)
			if err != nil {
				return nil, err
			}
			ret[name] = m
		case []*Record:
			list := make([]interface{}, 0, len(v))
			for _, item := range v {
				m, err := r.child(item, name, path)
				if err != nil {
					return nil, err
				}
				list = append(list, m)
			}
			ret[name] = list
		default:
			ret[name] = v
		}
	}
	return ret, nil
}

func (r *Record) child(c *Record, name string, path map[*Record]struct{}) (map[string]interface{}, error) {
	if c == nil {
		return nil, nil
	}
	if _, ok := path[c]; ok {
		return nil, r.cycleError(name)
	}
	return c.toMap(path)
}

func (r *Record) cycleError(name string) error {
	return fmt.Errorf("%w at %s.%s", ErrCyclicRecord, r.Entity, name)
}

//MarshalJSON writes the record as a JSON object with fields in order. It fails with ErrCyclicRecord like Map.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := r.encode(&buf, make(map[*Record]struct{})); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *Record) encode(buf *bytes.Buffer, path map[*Record]struct{}) error {
	path[r] = struct{}{}
	defer delete(path, r)

	buf.WriteByte('{')
	for i, name := range r.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return err
		}
		buf.Write(key)
		buf.WriteByte(':')

		switch v := r.values[name].(type) {
		case *Record:
			if v == nil {
				buf.WriteString("null")
				continue
			}
			if err := r.encodeChild(buf, v, name, path); err != nil {
				return err
			}
		case []*Record:
			if v == nil {
				buf.WriteString("null")
				continue
			}
			buf.WriteByte('[')
			for j, item := range v {
				if j > 0 {
					buf.WriteByte(',')
				}
				if err := r.encodeChild(buf, item, name, path); err != nil {
					return err
				}
			}
			buf.WriteByte(']')
		default:
			val, err := json.Marshal(v)
			if err != nil {
				return err
			}
			buf.Write(val)
		}
	}
	buf.WriteByte('}')
	return nil
}

func (r *Record) encodeChild(buf *bytes.Buffer, c *Record, name string, path map[*Record]struct{}) error {
	if c == nil {
		buf.WriteString("null")
		return nil
	}
	if _, ok := path[c]; ok {
		return r.cycleError(name)
	}
	return c.encode(buf, path)
}
