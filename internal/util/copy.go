package util

import "reflect"

// DeepCopy creates a deep copy of a value. Reads from the shared store hand
// out copies so that data a flow carries past its return can never alias the
// live store contents. A fast path covers the common store value shapes
// (string-keyed maps, interface slices, primitives); anything else goes
// through a reflection fallback. Cyclic structures are handled by tracking
// already-copied maps, slices, and pointers.
func DeepCopy(src interface{}) interface{} {
	if src == nil {
		return nil
	}
	seen := make(map[uintptr]interface{})
	return deepCopy(src, seen)
}

func deepCopy(src interface{}, seen map[uintptr]interface{}) interface{} {
	if src == nil {
		return nil
	}

	switch v := src.(type) {
	case map[string]interface{}:
		addr := reflect.ValueOf(v).Pointer()
		if cpy, ok := seen[addr]; ok {
			return cpy
		}
		cpy := make(map[string]interface{}, len(v))
		// Register before recursing so cycles resolve to the copy in progress.
		seen[addr] = cpy
		for key, value := range v {
			cpy[key] = deepCopy(value, seen)
		}
		return cpy

	case []interface{}:
		addr := reflect.ValueOf(v).Pointer()
		if cpy, ok := seen[addr]; ok {
			return cpy
		}
		cpy := make([]interface{}, len(v))
		seen[addr] = cpy
		for i, value := range v {
			cpy[i] = deepCopy(value, seen)
		}
		return cpy

	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, complex64, complex128:
		return v

	default:
		return deepCopyReflect(reflect.ValueOf(src), seen)
	}
}

// deepCopyReflect is the fallback for store values outside the fast-path
// types: typed maps and slices, pointers, structs, and arrays.
func deepCopyReflect(original reflect.Value, seen map[uintptr]interface{}) interface{} {
	if !original.IsValid() {
		return nil
	}

	switch original.Kind() {
	case reflect.Ptr:
		if original.IsNil() {
			return nil
		}
		addr := original.Pointer()
		if cpy, ok := seen[addr]; ok {
			return cpy
		}
		newPtr := reflect.New(original.Type().Elem())
		seen[addr] = newPtr.Interface()
		if elem := deepCopy(original.Elem().Interface(), seen); elem != nil {
			newPtr.Elem().Set(reflect.ValueOf(elem))
		}
		return newPtr.Interface()

	case reflect.Interface:
		if original.IsNil() {
			return nil
		}
		return deepCopy(original.Elem().Interface(), seen)

	case reflect.Slice:
		if original.IsNil() {
			return nil
		}
		addr := original.Pointer()
		if cpy, ok := seen[addr]; ok {
			return cpy
		}
		cpy := reflect.MakeSlice(original.Type(), original.Len(), original.Cap())
		seen[addr] = cpy.Interface()
		for i := 0; i < original.Len(); i++ {
			if elem := deepCopy(original.Index(i).Interface(), seen); elem != nil {
				cpy.Index(i).Set(reflect.ValueOf(elem))
			}
		}
		return cpy.Interface()

	case reflect.Map:
		if original.IsNil() {
			return nil
		}
		addr := original.Pointer()
		if cpy, ok := seen[addr]; ok {
			return cpy
		}
		cpy := reflect.MakeMap(original.Type())
		seen[addr] = cpy.Interface()
		iter := original.MapRange()
		for iter.Next() {
			key := deepCopy(iter.Key().Interface(), seen)
			value := deepCopy(iter.Value().Interface(), seen)
			cpy.SetMapIndex(reflect.ValueOf(key), reflect.ValueOf(value))
		}
		return cpy.Interface()

	case reflect.Struct:
		cpy := reflect.New(original.Type()).Elem()
		for i := 0; i < original.NumField(); i++ {
			if !cpy.Field(i).CanSet() {
				continue
			}
			if field := deepCopy(original.Field(i).Interface(), seen); field != nil {
				cpy.Field(i).Set(reflect.ValueOf(field))
			}
		}
		return cpy.Interface()

	case reflect.Array:
		cpy := reflect.New(original.Type()).Elem()
		for i := 0; i < original.Len(); i++ {
			if elem := deepCopy(original.Index(i).Interface(), seen); elem != nil {
				cpy.Index(i).Set(reflect.ValueOf(elem))
			}
		}
		return cpy.Interface()

	default:
		return original.Interface()
	}
}
