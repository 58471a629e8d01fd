package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// AttributeSet is the free-form attribute container on a master product.
// Keys and values are plain strings so the set stays queryable in jsonb
// without reflection games.
type AttributeSet map[string]string

func (a AttributeSet) Get(key string) (string, bool) {
	if a == nil {
		return "", false
	}
	v, ok := a[key]
	return v, ok
}

func (a AttributeSet) Set(key, value string) AttributeSet {
	if a == nil {
		a = AttributeSet{}
	}
	a[key] = value
	return a
}

// Merge copies keys from other that are not already present. Existing values
// win so enrichment never overwrites reviewed data.
func (a AttributeSet) Merge(other AttributeSet) AttributeSet {
	if len(other) == 0 {
		return a
	}
	if a == nil {
		a = AttributeSet{}
	}
	for k, v := range other {
		if _, ok := a[k]; !ok && v != "" {
			a[k] = v
		}
	}
	return a
}

// AttributeSetFromRaw flattens the raw attribute map that arrives on a source
// record into string values.
func AttributeSetFromRaw(raw map[string]any) AttributeSet {
	if len(raw) == 0 {
		return AttributeSet{}
	}
	out := make(AttributeSet, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}

func (a AttributeSet) Value() (driver.Value, error) {
	if a == nil {
		return json.Marshal(AttributeSet{})
	}
	return json.Marshal(a)
}

func (a *AttributeSet) Scan(src any) error {
	if src == nil {
		*a = AttributeSet{}
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("AttributeSet.Scan: expected []byte, got %T", src)
	}
	return json.Unmarshal(b, a)
}
