package hydrate

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

//ValueKind is the coercion rule applied to a raw column value before it is stored on an instance.
//The set is closed: every kind has a default value and a conversion, nothing falls back silently.
type ValueKind int

const (
	//KindRaw stores the value exactly as the driver delivered it
	KindRaw ValueKind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindTime
	KindDecimal
	KindUUID
	KindBytes
	//KindWrapped builds the value with the field's Wrap constructor
	KindWrapped
)

var kindNames = [...]string{
	KindRaw:     "raw",
	KindString:  "string",
	KindInt:     "int",
	KindFloat:   "float",
	KindBool:    "bool",
	KindTime:    "time",
	KindDecimal: "decimal",
	KindUUID:    "uuid",
	KindBytes:   "bytes",
	KindWrapped: "wrapped",
}

func (k ValueKind) valid() bool {
	return k >= KindRaw && k <= KindWrapped
}

func (k ValueKind) String() string {
	if k.valid() {
		return kindNames[k]
	}
	return fmt.Sprintf("ValueKind(%d)", int(k))
}

//ParseValueKind returns the kind with the given name. An empty name is KindRaw.
func ParseValueKind(name string) (ValueKind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return KindRaw, nil
	}
	for k, n := range kindNames {
		if n == name {
			return ValueKind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown value kind %q", name)
}

//MarshalText implements encoding.TextMarshaler.
func (k ValueKind) MarshalText() ([]byte, error) {
	if !k.valid() {
		return nil, fmt.Errorf("unknown value kind %d", int(k))
	}
	return []byte(k.String()), nil
}

//UnmarshalText implements encoding.TextUnmarshaler so kinds can be read from YAML and config files.
func (k *ValueKind) UnmarshalText(text []byte) error {
	parsed, err := ParseValueKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

//zeroValue is the value a new instance's field holds before any column has been assigned to it
func (k ValueKind) zeroValue() interface{} {
	switch k {
	case KindString:
		return ""
	case KindInt:
		return int64(0)
	case KindFloat:
		return float64(0)
	case KindBool:
		return false
	case KindTime:
		return time.Time{}
	case KindDecimal:
		return decimal.Zero
	case KindUUID:
		return uuid.Nil
	}
	return nil
}

var errUnsupportedSource = errors.New("unsupported source type")

//coerce converts a raw driver value into the representation for kind. NULL stays nil for every kind.
func coerce(kind ValueKind, wrap func(interface{}) (interface{}, error), v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}

	switch kind {
	case KindRaw:
		if b, ok := v.([]byte); ok {
			//drivers reuse their buffers between rows
			return append([]byte(nil), b...), nil
		}
		return v, nil
	case KindString:
		return cast.ToStringE(v)
	case KindInt:
		return toInt64(v)
	case KindFloat:
		if s, ok := textValue(v); ok {
			return strconv.ParseFloat(strings.TrimSpace(s), 64)
		}
		return cast.ToFloat64E(v)
	case KindBool:
		if s, ok := textValue(v); ok {
			return strconv.ParseBool(strings.TrimSpace(s))
		}
		return cast.ToBoolE(v)
	case KindTime:
		if s, ok := textValue(v); ok {
			return cast.ToTimeE(strings.TrimSpace(s))
		}
		return cast.ToTimeE(v)
	case KindDecimal:
		return toDecimal(v)
	case KindUUID:
		return toUUID(v)
	case KindBytes:
		switch t := v.(type) {
		case []byte:
			return append([]byte(nil), t...), nil
		case string:
			return []byte(t), nil
		}
		return nil, errUnsupportedSource
	case KindWrapped:
		if wrap == nil {
			return nil, errors.New("no constructor declared")
		}
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		return wrap(v)
	}

	return nil, fmt.Errorf("unknown value kind %d", int(kind))
}

//textValue returns v as a string when the driver delivered it as text
func textValue(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	}
	return "", false
}

func toInt64(v interface{}) (interface{}, error) {
	if s, ok := textValue(v); ok {
		s = strings.TrimSpace(s)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		//unsigned BIGINT values above MaxInt64 can not be represented
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
			return nil, fmt.Errorf("%q is not an integer", s)
		}
		return int64(f), nil
	}

	switch t := v.(type) {
	case uint64:
		if t > math.MaxInt64 {
			return nil, fmt.Errorf("%d overflows int64", t)
		}
	case float32, float64:
		f := reflect.ValueOf(t).Float()
		if f != math.Trunc(f) {
			return nil, fmt.Errorf("%v is not an integer", f)
		}
	}
	return cast.ToInt64E(v)
}

func toDecimal(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, nil
	case string:
		return decimal.NewFromString(strings.TrimSpace(t))
	case []byte:
		return decimal.NewFromString(strings.TrimSpace(string(t)))
	case float64:
		return decimal.NewFromFloat(t), nil
	case float32:
		return decimal.NewFromFloat32(t), nil
	case int64:
		return decimal.NewFromInt(t), nil
	}

	i, err := cast.ToInt64E(v)
	if err != nil {
		return nil, errUnsupportedSource
	}
	return decimal.NewFromInt(i), nil
}

func toUUID(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case uuid.UUID:
		return t, nil
	case string:
		return uuid.Parse(strings.TrimSpace(t))
	case []byte:
		if len(t) == 16 {
			return uuid.FromBytes(t)
		}
		return uuid.ParseBytes(t)
	}
	return nil, errUnsupportedSource
}
