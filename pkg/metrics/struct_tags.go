package metrics

import (
	"fmt"
	"path"
	"reflect"
)

type metricAdder func(interface{}, string, string, map[string]string) interface{}

func equalType(a, b interface{}) bool {
	return reflect.TypeOf(a) == reflect.TypeOf(b)
}

// scanStruct walks a struct and allocates a measure for every tagged measure field.
func scanStruct(parent string, adder metricAdder, m interface{}) {
	rv := reflect.ValueOf(m)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		panic(fmt.Sprintf("scanStruct requires a pointer to a struct, got: %T", m))
	}
	scanValue(parent, adder, rv.Elem())
}

// scanValue walks an addressable struct value
func scanValue(parent string, adder metricAdder, container reflect.Value) {
	typ := container.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		value := container.Field(i)
		if !value.CanSet() {
			continue
		}

		tags := fieldTags(field)
		metric := tags["metric"]
		location := path.Join(parent, tags["group"])

		if metric == "" {
			// nested groups of metrics: slices, maps and the like are ignored
			switch {
			case value.Kind() == reflect.Struct:
				scanValue(location, adder, value)
			case value.Kind() == reflect.Ptr && value.Type().Elem().Kind() == reflect.Struct:
				if value.IsNil() {
					value.Set(reflect.New(value.Type().Elem()))
				}
				scanValue(location, adder, value.Elem())
			}
			continue
		}

		if value.Kind() != reflect.Ptr {
			continue
		}
		if allocated := adder(value.Interface(), metric, location, tags); allocated != nil {
			value.Set(reflect.ValueOf(allocated))
		}
	}
}

// fieldTags decodes the struct tags declaring metrics.
//
// Supported tags are:
//   - metric: the metric name
//   - group: builds an additional path to the metric (e.g. root/path/{group}/{metric})
//   - unit: count, bytes, sumbytes or milliseconds
//   - description: adds this description to the metric and the associated views
//   - extraviews: [aggregator, ...] builds additional views with alternate aggregators
//   - tags: [key, ...] tag keys used to group the views
func fieldTags(field reflect.StructField) map[string]string {
	tags := make(map[string]string, 6)
	for tagName, key := range map[string]string{
		"metric":      "metric",
		"unit":        "unit",
		"group":       "group",
		"description": "description",
		"extraviews":  "views",
		"tags":        "groupings",
	} {
		if value, ok := field.Tag.Lookup(tagName); ok {
			tags[key] = value
		}
	}
	return tags
}
