package record

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/arrooney/ex2-services/internal/errors"
)

// FieldValue is one named telemetry value of a record.
type FieldValue struct {
	Subsystem string // Schema name, or "header"
	Name      string // hk tag, with [i] for array elements
	Value     float64
}

// Fields flattens r into named values in serialization order.
func Fields(r *Record) []FieldValue {
	out := make([]FieldValue, 0, 128)
	out = appendFields(out, "header", reflect.ValueOf(&r.Header).Elem())
	for _, d := range Schema {
		out = appendFields(out, d.Name, reflect.ValueOf(r.Block(d.Subsystem)).Elem())
	}
	return out
}

// FieldNames lists the addressable field names of a subsystem block.
func FieldNames(s Subsystem) []string {
	var r Record
	blk := r.Block(s)
	if blk == nil {
		return nil
	}
	fields := appendFields(nil, s.String(), reflect.ValueOf(blk).Elem())
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

func appendFields(out []FieldValue, subsystem string, v reflect.Value) []FieldValue {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		name := t.Field(i).Tag.Get("hk")
		fv := v.Field(i)
		if fv.Kind() == reflect.Array {
			for j := 0; j < fv.Len(); j++ {
				out = append(out, FieldValue{
					Subsystem: subsystem,
					Name:      name + "[" + strconv.Itoa(j) + "]",
					Value:     numeric(fv.Index(j)),
				})
			}
			continue
		}
		out = append(out, FieldValue{Subsystem: subsystem, Name: name, Value: numeric(fv)})
	}
	return out
}

func numeric(v reflect.Value) float64 {
	switch v.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int())
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint())
	case reflect.Float32, reflect.Float64:
		return v.Float()
	default:
		return 0
	}
}

// SetField assigns value to the named field of a subsystem block.
// Array elements are addressed as "name[i]". Values that do not fit the
// field's type are rejected with ErrInvalidArgument.
func SetField(r *Record, s Subsystem, name string, value float64) error {
	blk := r.Block(s)
	if blk == nil {
		return errors.NewInvalidValue("subsystem", s, "not in schema")
	}

	base, idx, err := splitIndex(name)
	if err != nil {
		return err
	}

	v := reflect.ValueOf(blk).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).Tag.Get("hk") != base {
			continue
		}
		fv := v.Field(i)
		if fv.Kind() == reflect.Array {
			if idx < 0 || idx >= fv.Len() {
				return errors.NewInvalidValue("field index", name, fmt.Sprintf("array has %d elements", fv.Len()))
			}
			fv = fv.Index(idx)
		} else if idx >= 0 {
			return errors.NewInvalidValue("field", name, "not an array")
		}
		return assign(fv, name, value)
	}
	return errors.NewNotFound(s.String()+" field", name)
}

func splitIndex(name string) (string, int, error) {
	open := strings.IndexByte(name, '[')
	if open < 0 {
		return name, -1, nil
	}
	if !strings.HasSuffix(name, "]") {
		return "", 0, errors.NewInvalidValue("field", name, "unterminated index")
	}
	idx, err := strconv.Atoi(name[open+1 : len(name)-1])
	if err != nil {
		return "", 0, errors.NewInvalidValue("field", name, "index is not a number")
	}
	return name[:open], idx, nil
}

func assign(fv reflect.Value, name string, value float64) error {
	switch fv.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := int64(value)
		if float64(n) != value || fv.OverflowInt(n) {
			return errors.NewInvalidValue(name, value, "does not fit "+fv.Type().String())
		}
		fv.SetInt(n)
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if value < 0 {
			return errors.NewInvalidValue(name, value, "negative for "+fv.Type().String())
		}
		n := uint64(value)
		if float64(n) != value || fv.OverflowUint(n) {
			return errors.NewInvalidValue(name, value, "does not fit "+fv.Type().String())
		}
		fv.SetUint(n)
	case reflect.Float32, reflect.Float64:
		fv.SetFloat(value)
	default:
		return errors.NewInvalidValue(name, value, "unsupported kind "+fv.Kind().String())
	}
	return nil
}
