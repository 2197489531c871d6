package model

// Document is the generic field-to-value mapping held by the record store.
// Values are scalars: string, number, bool or nil.
type Document map[string]any

// Clone returns a shallow copy; nil stays nil.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Has reports whether key is present with a non-nil value.
func (d Document) Has(key string) bool {
	v, ok := d[key]
	return ok && v != nil
}

// String returns the string at key or fallback when missing or not a string.
func (d Document) String(key, fallback string) string {
	if s, ok := d[key].(string); ok {
		return s
	}
	return fallback
}

// Bool returns the bool at key or fallback.
func (d Document) Bool(key string, fallback bool) bool {
	if b, ok := d[key].(bool); ok {
		return b
	}
	return fallback
}

// Int64 coerces any numeric value at key to int64.
func (d Document) Int64(key string, fallback int64) int64 {
	if n, ok := toInt64(d[key]); ok {
		return n
	}
	return fallback
}

// Float64 coerces any numeric value at key to float64.
func (d Document) Float64(key string, fallback float64) float64 {
	if f, ok := toFloat64(d[key]); ok {
		return f
	}
	return fallback
}

// OptionalString returns nil unless key holds a non-empty string.
func (d Document) OptionalString(key string) *string {
	s, ok := d[key].(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}

// OptionalInt64 returns nil unless key holds a number.
func (d Document) OptionalInt64(key string) *int64 {
	n, ok := toInt64(d[key])
	if !ok {
		return nil
	}
	return &n
}

type int64er interface {
	Int64() (int64, error)
}

type float64er interface {
	Float64() (float64, error)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float32:
		return int64(n), true
	case float64:
		return int64(n), true
	case int64er:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, ok := v.(float64er); ok {
			if x, err := f.Float64(); err == nil {
				return int64(x), true
			}
		}
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case float64er:
		if f, err := n.Float64(); err == nil {
			return f, true
		}
		return 0, false
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

// EqualScalar compares two document values, treating all numeric kinds as
// one domain so that 3, int64(3) and 3.0 are equal.
func EqualScalar(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	fa, aNum := toFloat64(a)
	fb, bNum := toFloat64(b)
	if aNum || bNum {
		return aNum && bNum && fa == fb
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	}
	return false
}
