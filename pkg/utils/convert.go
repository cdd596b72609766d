// Package utils provides value coercion and map helpers shared by the
// validator, the diff engine and the reconcilers.
package utils

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ConvertToType converts a value to the named scalar type.
// Supported types: string, int, float, bool
func ConvertToType(value interface{}, targetType string) (interface{}, error) {
	switch targetType {
	case "string", "str":
		return ConvertToString(value)
	case "int", "int64", "integer":
		return ConvertToInt64(value)
	case "float", "float64", "number":
		return ConvertToFloat64(value)
	case "bool", "boolean":
		return ConvertToBool(value)
	default:
		return nil, fmt.Errorf("unsupported type: %s (supported: string, int, float, bool)", targetType)
	}
}

// ConvertToString converts a scalar to string. Mappings and sequences are rejected.
func ConvertToString(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case int, int8, int16, int32, int64:
		return fmt.Sprintf("%d", v), nil
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case json.Number:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", fmt.Errorf("cannot convert %T to string", value)
	}
}

// ConvertToInt64 converts a value to int64. Numeric-looking strings are
// parsed; floats must be integral; booleans are rejected.
func ConvertToInt64(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		if v > uint(math.MaxInt64) {
			return 0, fmt.Errorf("uint value %d overflows int64", v)
		}
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("uint64 value %d overflows int64", v)
		}
		return int64(v), nil
	case float32:
		return integralFloat(float64(v))
	case float64:
		return integralFloat(v)
	case json.Number:
		return ConvertToInt64(v.String())
	case string:
		s := strings.TrimSpace(v)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return integralFloat(f)
		}
		return 0, fmt.Errorf("cannot convert string %q to int", v)
	default:
		return 0, fmt.Errorf("cannot convert %T to int", value)
	}
}

func integralFloat(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("value %v is not an integer", f)
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("value %v overflows int64", f)
	}
	return int64(f), nil
}

// ConvertToFloat64 converts a value to a finite float64. Booleans, NaN and
// infinities are rejected.
func ConvertToFloat64(value interface{}) (float64, error) {
	f, err := toFloat64(value)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("value %v is not a finite number", value)
	}
	return f, nil
}

func toFloat64(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert string %q to float", v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to float", value)
	}
}

// ConvertToBool converts a value to bool. Strings accept the usual
// true/false spellings plus yes/no and on/off; integers 0 and 1 are accepted.
func ConvertToBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "yes", "y", "on":
				return true, nil
			case "no", "n", "off":
				return false, nil
			}
			return false, fmt.Errorf("cannot convert string %q to bool", v)
		}
		return b, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		i, err := ConvertToInt64(v)
		if err != nil {
			return false, err
		}
		switch i {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
		return false, fmt.Errorf("cannot convert %d to bool", i)
	default:
		return false, fmt.Errorf("cannot convert %T to bool", value)
	}
}

// IsEmpty reports whether v is nil, an empty string, or an empty sequence or mapping
func IsEmpty(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []interface{}:
		return len(x) == 0
	case map[string]interface{}:
		return len(x) == 0
	}
	return false
}
