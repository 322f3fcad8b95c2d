// Package timex holds small time helpers shared by the config overlay and
// the CiviCRM schema converters: a JSON-friendly duration and conversions
// between epoch seconds (the CRM's wire representation) and time.Time.
package timex

import (
	"encoding/json"
	"errors"
	"time"
)

// Duration wraps time.Duration so JSON config files can express intervals
// either as strings such as "30s" or as integer nanoseconds.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	default:
		return errors.New("invalid duration")
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// FromEpoch converts epoch seconds to a local time.Time.
func FromEpoch(sec int64) time.Time {
	return time.Unix(sec, 0)
}

// ToEpoch converts a time.Time to epoch seconds.
func ToEpoch(t time.Time) int64 {
	return t.Unix()
}
