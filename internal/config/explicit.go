package config

import (
	"reflect"
	"strings"
)

// keepFileValues copies back every field that the YAML document sets, so that a value
// written in the file wins over its `default` tag even when it is zero.
// dst has had defaults applied; parsed is the same config before defaults.
func keepFileValues(dst, parsed reflect.Value, doc map[string]interface{}) {
	t := dst.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.PkgPath != "" {
			continue
		}
		raw, ok := doc[yamlKey(field)]
		if !ok || raw == nil {
			continue
		}

		if field.Type.Kind() == reflect.Struct {
			if nested, ok := raw.(map[string]interface{}); ok {
				keepFileValues(dst.Field(i), parsed.Field(i), nested)
			}
			continue
		}
		dst.Field(i).Set(parsed.Field(i))
	}
}

func yamlKey(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("yaml"), ",")
	if name == "" {
		return strings.ToLower(field.Name)
	}
	return name
}
