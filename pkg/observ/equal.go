package observ

import "reflect"

// defaultEquals provides type-appropriate equality checking.
// Uses == for common comparable types and reflect.DeepEqual for others.
func defaultEquals[T any](a, b T) bool {
	if reflect.TypeOf(any(a)) != reflect.TypeOf(any(b)) {
		return false
	}
	switch av := any(a).(type) {
	case int:
		return av == any(b).(int)
	case int8:
		return av == any(b).(int8)
	case int16:
		return av == any(b).(int16)
	case int32:
		return av == any(b).(int32)
	case int64:
		return av == any(b).(int64)
	case uint:
		return av == any(b).(uint)
	case uint8:
		return av == any(b).(uint8)
	case uint16:
		return av == any(b).(uint16)
	case uint32:
		return av == any(b).(uint32)
	case uint64:
		return av == any(b).(uint64)
	case float32:
		return av == any(b).(float32)
	case float64:
		return av == any(b).(float64)
	case string:
		return av == any(b).(string)
	case bool:
		return av == any(b).(bool)
	case nil:
		return valuesEqual(any(a), any(b))
	default:
		if _, isMap := any(a).(map[string]any); isMap {
			return valuesEqual(any(a), any(b))
		}
		if _, isSlice := any(a).([]any); isSlice {
			return valuesEqual(any(a), any(b))
		}
		return reflect.DeepEqual(a, b)
	}
}
