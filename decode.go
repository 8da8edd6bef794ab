package hydrate

import (
	"database/sql"
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

var recordSliceType = reflect.TypeOf([]*Record(nil))

//Decode copies hydrated records into output, which must be a pointer to a value that can be set.
//If a slice is provided all records are appended to it, as structs or pointers depending on its element type.
//If a single item is passed the first record is used and the output is left untouched when there are none.
//Struct fields are matched by name, embedded structs are squashed, so output types built for LoadModel decode
//without tags. Fields implementing sql.Scanner receive the raw column value through Scan.
func Decode(records []*Record, output interface{}) error {
	if err := checkOutput(output); err != nil {
		return err
	}
	el := reflect.ValueOf(output).Elem()

	if el.Type() == recordSliceType {
		el.Set(reflect.AppendSlice(el, reflect.ValueOf(records)))
		return nil
	}

	if el.Kind() == reflect.Slice {
		maps := make([]interface{}, 0, len(records))
		for _, r := range records {
			m, err := r.Map()
			if err != nil {
				return err
			}
			maps = append(maps, m)
		}
		decoded := reflect.New(el.Type())
		if err := decodeInto(maps, decoded.Interface()); err != nil {
			return err
		}
		el.Set(reflect.AppendSlice(el, decoded.Elem()))
		return nil
	}

	if len(records) == 0 {
		return nil
	}
	m, err := records[0].Map()
	if err != nil {
		return err
	}
	decoded := reflect.New(el.Type())
	if err := decodeInto(m, decoded.Interface()); err != nil {
		return err
	}
	el.Set(decoded.Elem())
	return nil
}

func checkOutput(output interface{}) error {
	val := reflect.ValueOf(output)
	if val.Kind() != reflect.Ptr || val.IsNil() || !val.Elem().CanSet() {
		return fmt.Errorf("hydrate: output of type %T can not be set", output)
	}
	return nil
}

func decodeInto(input interface{}, result interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.DecodeHookFuncType(scannerHook),
		Squash:     true,
		Result:     result,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("hydrate: decode %T: %w", result, err)
	}
	return nil
}

//scannerHook hands raw values to sql.Scanner fields. Values already of the field's type, such as time.Time,
//decimal.Decimal or uuid.UUID produced by coercion, are passed through as they are.
func scannerHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if from == to {
		return data, nil
	}
	if to.Kind() == reflect.Ptr || !reflect.PtrTo(to).Implements(scannerType) {
		return data, nil
	}
	if from.Kind() == reflect.Map || (from.Kind() == reflect.Slice && from.Elem().Kind() != reflect.Uint8) {
		//nested records are decoded field by field
		return data, nil
	}

	ptr := reflect.New(to)
	if err := ptr.Interface().(sql.Scanner).Scan(data); err != nil {
		return nil, fmt.Errorf("scan %T into %s: %w", data, to, err)
	}
	return ptr.Elem().Interface(), nil
}
