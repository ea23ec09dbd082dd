// Package settings holds the user-facing filter settings and the stores they are kept in.
package settings

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/spf13/cast"
)

const (
	KeyEnabled        = "enabled"
	KeyMinRating      = "minRating"
	KeyMinOpinions    = "minOpinions"
	KeyAutoPagination = "autoPagination"
	KeyMaxPages       = "maxPages"
	KeyShowSummary    = "showSummary"
	KeyHideSponsored  = "hideSponsored"
)

// Keys lists every recognised key in display order.
var Keys = []string{
	KeyEnabled,
	KeyMinRating,
	KeyMinOpinions,
	KeyAutoPagination,
	KeyMaxPages,
	KeyShowSummary,
	KeyHideSponsored,
}

var ErrUnknownKey = errors.New("unknown settings key")

type Settings struct {
	Enabled        bool    `json:"enabled"`
	MinRating      float64 `json:"minRating"`
	MinOpinions    int     `json:"minOpinions"`
	AutoPagination bool    `json:"autoPagination"`
	MaxPages       int     `json:"maxPages"`
	ShowSummary    bool    `json:"showSummary"`
	HideSponsored  bool    `json:"hideSponsored"`
}

// Defaults is also what Seed writes on first install.
func Defaults() Settings {
	return Settings{
		Enabled:        true,
		MinRating:      4.9,
		MinOpinions:    100,
		AutoPagination: false,
		MaxPages:       100,
		ShowSummary:    true,
		HideSponsored:  false,
	}
}

// Values is a raw key/value view of a store. Recognised keys carry
// bool, float64 or int values once passed through Normalize.
type Values map[string]any

// Normalize coerces value to the canonical type of key.
func Normalize(key string, value any) (any, error) {
	switch key {
	case KeyEnabled, KeyAutoPagination, KeyShowSummary, KeyHideSponsored:
		return cast.ToBoolE(value)
	case KeyMinRating:
		return cast.ToFloat64E(value)
	case KeyMinOpinions, KeyMaxPages:
		return cast.ToIntE(value)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
}

// NormalizeAll drops unknown keys and values that cannot be coerced.
func NormalizeAll(v Values) Values {
	out := make(Values, len(v))
	for k, raw := range v {
		if n, err := Normalize(k, raw); err == nil {
			out[k] = n
		}
	}
	return out
}

// Overlay returns a copy of s with every recognised, well-typed key in v applied.
func (s Settings) Overlay(v Values) Settings {
	for k, raw := range v {
		n, err := Normalize(k, raw)
		if err != nil {
			continue
		}
		switch k {
		case KeyEnabled:
			s.Enabled = n.(bool)
		case KeyMinRating:
			s.MinRating = n.(float64)
		case KeyMinOpinions:
			s.MinOpinions = n.(int)
		case KeyAutoPagination:
			s.AutoPagination = n.(bool)
		case KeyMaxPages:
			s.MaxPages = n.(int)
		case KeyShowSummary:
			s.ShowSummary = n.(bool)
		case KeyHideSponsored:
			s.HideSponsored = n.(bool)
		}
	}
	return s
}

func (s Settings) Values() Values {
	return Values{
		KeyEnabled:        s.Enabled,
		KeyMinRating:      s.MinRating,
		KeyMinOpinions:    s.MinOpinions,
		KeyAutoPagination: s.AutoPagination,
		KeyMaxPages:       s.MaxPages,
		KeyShowSummary:    s.ShowSummary,
		KeyHideSponsored:  s.HideSponsored,
	}
}

// Diff returns the keys whose values differ between s and o.
func (s Settings) Diff(o Settings) []string {
	a, b := s.Values(), o.Values()
	var keys []string
	for _, k := range Keys {
		if a[k] != b[k] {
			keys = append(keys, k)
		}
	}
	return keys
}

// ChangedValues returns the entries of next that are absent from prev or differ from it.
func ChangedValues(prev, next Values) Values {
	changed := Values{}
	for k, v := range next {
		if old, ok := prev[k]; !ok || !reflect.DeepEqual(old, v) {
			changed[k] = v
		}
	}
	return changed
}

// Store is an external key/value settings backend with change notifications.
type Store interface {
	// Get returns the stored values for keys, or every stored value when keys is empty.
	// Missing keys are absent from the result.
	Get(ctx context.Context, keys ...string) (Values, error)
	// Set writes values. Subscribers receive the entries that actually changed.
	Set(ctx context.Context, values Values) error
	// Subscribe delivers changed entries until ctx is done. The channel is never closed.
	Subscribe(ctx context.Context) (<-chan Values, error)
}

// Load reads every recognised key and overlays it onto the defaults.
func Load(ctx context.Context, store Store) (Settings, error) {
	stored, err := store.Get(ctx, Keys...)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	return Defaults().Overlay(stored), nil
}

// Seed writes the default for every key that is missing from the store and
// returns what it wrote. Existing keys are never overwritten.
func Seed(ctx context.Context, store Store) (Values, error) {
	current, err := store.Get(ctx, Keys...)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	defaults := Defaults().Values()
	missing := Values{}
	for _, k := range Keys {
		if _, ok := current[k]; !ok {
			missing[k] = defaults[k]
		}
	}
	if len(missing) == 0 {
		return missing, nil
	}
	if err := store.Set(ctx, missing); err != nil {
		return nil, fmt.Errorf("seed settings: %w", err)
	}
	return missing, nil
}
