package model

import (
	"encoding/json"
	"strconv"
)

// Optional 可缺省的数值。缺省与 0 是两种不同的状态。
type Optional struct {
	value float64
	ok    bool
}

func Some(v float64) Optional { return Optional{value: v, ok: true} }

func None() Optional { return Optional{} }

func (o Optional) Get() (float64, bool) { return o.value, o.ok }

func (o Optional) Valid() bool { return o.ok }

// Or returns the value or def when absent.
func (o Optional) Or(def float64) float64 {
	if !o.ok {
		return def
	}
	return o.value
}

func (o Optional) String() string {
	if !o.ok {
		return "n/a"
	}
	return strconv.FormatFloat(o.value, 'f', -1, 64)
}

func (o Optional) MarshalJSON() ([]byte, error) {
	if !o.ok {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

func (o *Optional) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*o = None()
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}
