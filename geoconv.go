package cluster

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/paulmach/orb"
)

// DefaultAccessorField is the field read when no accessor is configured.
const DefaultAccessorField = "location"

// Accessor locates the coordinate of an item.
// It is either a field name or a function, see ByFieldName and ByFunction.
type Accessor[T any] struct {
	field string
	fn    func(T) (Coordinate, error)
}

// ByFieldName reads item[name]. For map items name is the key, for struct items
// it matches the Go field name case-insensitively or the json tag.
func ByFieldName[T any](name string) Accessor[T] {
	return Accessor[T]{field: name}
}

// ByFunction derives the coordinate with fn.
func ByFunction[T any](fn func(T) (Coordinate, error)) Accessor[T] {
	return Accessor[T]{fn: fn}
}

// Validate fails when the accessor has neither a field name nor a function.
func (a Accessor[T]) Validate() error {
	if a.fn == nil && strings.TrimSpace(a.field) == "" {
		return &ConfigError{Field: "Accessor", Reason: "needs a field name or a function"}
	}
	return nil
}

func (a Accessor[T]) String() string {
	if a.fn != nil {
		return "func"
	}
	return a.field
}

// Coordinate resolves the item coordinate.
func (a Accessor[T]) Coordinate(item T) (Coordinate, error) {
	var (
		c   Coordinate
		err error
	)
	if a.fn != nil {
		c, err = a.fn(item)
	} else {
		c, err = coordinateByField(item, a.field)
	}
	if err != nil {
		return Coordinate{}, err
	}
	if !c.valid() {
		return Coordinate{}, &CoordinateError{Index: -1, Reason: fmt.Sprintf("out of range (%v, %v)", c.Latitude, c.Longitude)}
	}
	return c, nil
}

// ToPoint converts one item into index input.
func ToPoint[T any](item T, accessor Accessor[T]) (Point[T], error) {
	c, err := accessor.Coordinate(item)
	if err != nil {
		return Point[T]{}, err
	}
	return Point[T]{Lon: c.Longitude, Lat: c.Latitude, Item: item}, nil
}

// ConvertItems converts a snapshot, skipping and logging items with a bad coordinate.
// It returns the points and the number of skipped items.
func ConvertItems[T any](items []T, accessor Accessor[T], l *slog.Logger) ([]Point[T], int) {
	points := make([]Point[T], 0, len(items))
	skipped := 0
	for i, item := range items {
		p, err := ToPoint(item, accessor)
		if err != nil {
			skipped++
			var ce *CoordinateError
			if errors.As(err, &ce) {
				ce.Index = i
			}
			if l != nil {
				l.Warn("item_skipped", "index", i, "accessor", accessor.String(), "err", err)
			}
			continue
		}
		points = append(points, p)
	}
	return points, skipped
}

var coordinateType = reflect.TypeOf(Coordinate{})

func coordinateByField(item any, name string) (Coordinate, error) {
	v := indirect(reflect.ValueOf(item))
	if !v.IsValid() {
		return Coordinate{}, &CoordinateError{Index: -1, Reason: "item is nil"}
	}
	var field reflect.Value
	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return Coordinate{}, &CoordinateError{Index: -1, Reason: "map item needs string keys"}
		}
		field = v.MapIndex(reflect.ValueOf(name).Convert(v.Type().Key()))
	case reflect.Struct:
		field = structField(v, name)
	default:
		return Coordinate{}, &CoordinateError{Index: -1, Reason: fmt.Sprintf("cannot read field %q of %s", name, v.Kind())}
	}
	field = indirect(field)
	if !field.IsValid() {
		return Coordinate{}, &CoordinateError{Index: -1, Reason: fmt.Sprintf("field %q is missing", name)}
	}
	return toCoordinate(field)
}

func toCoordinate(v reflect.Value) (Coordinate, error) {
	switch {
	case v.Type() == coordinateType:
		return v.Interface().(Coordinate), nil
	case v.Type() == reflect.TypeOf(orb.Point{}):
		return CoordinateFromPoint(v.Interface().(orb.Point)), nil
	}

	var lat, lon reflect.Value
	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return Coordinate{}, &CoordinateError{Index: -1, Reason: "coordinate map needs string keys"}
		}
		lat = indirect(v.MapIndex(reflect.ValueOf("latitude").Convert(v.Type().Key())))
		lon = indirect(v.MapIndex(reflect.ValueOf("longitude").Convert(v.Type().Key())))
	case reflect.Struct:
		lat = indirect(structField(v, "latitude"))
		lon = indirect(structField(v, "longitude"))
	default:
		return Coordinate{}, &CoordinateError{Index: -1, Reason: fmt.Sprintf("%s is not a coordinate", v.Type())}
	}

	la, ok := number(lat)
	if !ok {
		return Coordinate{}, &CoordinateError{Index: -1, Reason: "latitude is missing or not numeric"}
	}
	lo, ok := number(lon)
	if !ok {
		return Coordinate{}, &CoordinateError{Index: -1, Reason: "longitude is missing or not numeric"}
	}
	return Coordinate{Latitude: la, Longitude: lo}, nil
}

func structField(v reflect.Value, name string) reflect.Value {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := strings.Split(f.Tag.Get("json"), ",")[0]
		if strings.EqualFold(f.Name, name) || (tag != "" && tag == name) {
			return v.Field(i)
		}
	}
	return reflect.Value{}
}

func number(v reflect.Value) (float64, bool) {
	if !v.IsValid() {
		return 0, false
	}
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), true
	}
	return 0, false
}

// indirect unwraps pointers and interfaces, an invalid value means nil
func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}
