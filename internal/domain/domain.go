package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"reflect"
	"time"
)

// Hydration selects how NewProjectWith copies values from an untyped source.
type Hydration int

const (
	// HydrateTruthy overwrites a default only when the source value is truthy.
	// 0, "", false and nil keep the default.
	HydrateTruthy Hydration = iota
	// HydratePresent overwrites whenever the key is present with a usable value.
	HydratePresent
)

// ParseHydration maps a config value to a Hydration mode.
func ParseHydration(s string) (Hydration, bool) {
	switch s {
	case "", "truthy":
		return HydrateTruthy, true
	case "present":
		return HydratePresent, true
	default:
		return HydrateTruthy, false
	}
}

func (h Hydration) String() string {
	if h == HydratePresent {
		return "present"
	}
	return "truthy"
}

// Project is one project record.
type Project struct {
	ID               *int64    `json:"id,omitempty"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	ImageURL         string    `json:"imageUrl"`
	ContractTypeID   *int64    `json:"contractTypeId,omitempty"`
	ContractSignedOn time.Time `json:"contractSignedOn" format:"date-time"`
	Budget           float64   `json:"budget"`
	IsActive         bool      `json:"isActive"`
}

// Now is the clock used for the ContractSignedOn default.
var Now = time.Now

// NewProject returns a defaulted record hydrated from src with HydrateTruthy.
func NewProject(src map[string]any) Project {
	return NewProjectWith(src, HydrateTruthy)
}

// NewProjectWith returns a defaulted record hydrated from src. It never fails:
// values of the wrong type are skipped and the default stays.
func NewProjectWith(src map[string]any, mode Hydration) Project {
	p := Project{ContractSignedOn: Now()}
	if src == nil {
		return p
	}
	take := func(key string) (any, bool) {
		v, ok := src[key]
		if !ok {
			return nil, false
		}
		if mode == HydrateTruthy && !truthy(v) {
			return nil, false
		}
		return v, v != nil
	}
	if v, ok := take("id"); ok {
		if n, ok := asInt64(v); ok {
			p.ID = &n
		}
	}
	if v, ok := take("name"); ok {
		if s, ok := v.(string); ok {
			p.Name = s
		}
	}
	if v, ok := take("description"); ok {
		if s, ok := v.(string); ok {
			p.Description = s
		}
	}
	if v, ok := take("imageUrl"); ok {
		if s, ok := v.(string); ok {
			p.ImageURL = s
		}
	}
	if v, ok := take("contractTypeId"); ok {
		if n, ok := asInt64(v); ok {
			p.ContractTypeID = &n
		}
	}
	if v, ok := take("contractSignedOn"); ok {
		if t, ok := asTime(v); ok {
			p.ContractSignedOn = t
		}
	}
	if v, ok := take("budget"); ok {
		if f, ok := asFloat64(v); ok {
			p.Budget = f
		}
	}
	if v, ok := take("isActive"); ok {
		if b, ok := v.(bool); ok {
			p.IsActive = b
		}
	}
	return p
}

// IsNew reports whether the record has not been persisted yet.
func (p Project) IsNew() bool {
	return p.ID == nil
}

// UnmarshalJSON hydrates through NewProject so decoded records follow the
// same rule as every other source.
func (p *Project) UnmarshalJSON(data []byte) error {
	v, err := DecodeProject(data, HydrateTruthy)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// DecodeProject hydrates a record from a JSON object with mode.
func DecodeProject(data []byte, mode Hydration) (Project, error) {
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return Project{}, err
	}
	return NewProjectWith(raw, mode), nil
}

// Int64 returns a pointer to n.
func Int64(n int64) *int64 {
	return &n
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case json.Number:
		f, err := x.Float64()
		return err != nil || (f != 0 && !math.IsNaN(f))
	case time.Time:
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		return f != 0 && !math.IsNaN(f)
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, true
		}
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		return integral(f)
	case *int64:
		if x == nil {
			return 0, false
		}
		return *x, true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	case reflect.Float32, reflect.Float64:
		return integral(rv.Float())
	}
	return 0, false
}

func integral(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

func asTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case *time.Time:
		if x == nil {
			return time.Time{}, false
		}
		return *x, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, x)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}
