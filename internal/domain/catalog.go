package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ID accepts both JSON strings and numbers; the backend is not consistent.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

type Category struct {
	ID    ID     `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

type SubCategory struct {
	ID         ID     `json:"id"`
	CategoryID ID     `json:"categoryId,omitempty"`
	Name       string `json:"name"`
	Image      string `json:"image,omitempty"`
}

type Item struct {
	ID          ID              `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image,omitempty"`
	Options     ItemOptions     `json:"options"`
}

// OptionValues is the canonical list form of a customization option. It
// decodes ["a","b"], [{"value":"a"}], "a,b" and null.
type OptionValues []string

func (o *OptionValues) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*o = nil
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*o = splitOptions(s)
		return nil
	case data[0] == '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		out := make(OptionValues, 0, len(raw))
		for _, elem := range raw {
			v, err := optionValue(elem)
			if err != nil {
				return err
			}
			if v != "" {
				out = append(out, v)
			}
		}
		*o = out
		return nil
	default:
		return fmt.Errorf("unsupported option shape: %s", data)
	}
}

func optionValue(elem json.RawMessage) (string, error) {
	elem = bytes.TrimSpace(elem)
	if len(elem) == 0 || bytes.Equal(elem, []byte("null")) {
		return "", nil
	}
	switch elem[0] {
	case '"':
		var s string
		err := json.Unmarshal(elem, &s)
		return strings.TrimSpace(s), err
	case '{':
		var obj struct {
			Value json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(elem, &obj); err != nil {
			return "", err
		}
		return optionValue(obj.Value)
	default:
		// numbers and booleans keep their literal text
		return string(elem), nil
	}
}

func splitOptions(s string) OptionValues {
	parts := strings.Split(s, ",")
	out := make(OptionValues, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Default is the preselected value: the first option, or empty when none.
func (o OptionValues) Default() string {
	if len(o) == 0 {
		return ""
	}
	return o[0]
}

func (o OptionValues) Contains(v string) bool {
	for _, x := range o {
		if x == v {
			return true
		}
	}
	return false
}

// ItemOptions lists what a customer may choose for an item. The backend uses
// both "milk"/"milks" and "mixer"/"mixers"; either spelling lands here.
type ItemOptions struct {
	Sizes OptionValues `json:"sizes,omitempty"`
	Milk  OptionValues `json:"milk,omitempty"`
	Shots OptionValues `json:"shots,omitempty"`
	Mixer OptionValues `json:"mixer,omitempty"`
}

func (o *ItemOptions) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = ItemOptions{}
		return nil
	}
	var raw struct {
		Sizes  OptionValues `json:"sizes"`
		Milk   OptionValues `json:"milk"`
		Milks  OptionValues `json:"milks"`
		Shots  OptionValues `json:"shots"`
		Mixer  OptionValues `json:"mixer"`
		Mixers OptionValues `json:"mixers"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*o = ItemOptions{
		Sizes: raw.Sizes,
		Milk:  firstNonEmpty(raw.Milk, raw.Milks),
		Shots: raw.Shots,
		Mixer: firstNonEmpty(raw.Mixer, raw.Mixers),
	}
	return nil
}

func firstNonEmpty(a, b OptionValues) OptionValues {
	if len(a) > 0 {
		return a
	}
	return b
}

// Defaults returns the preselected customizations for a fresh add-to-cart.
func (o ItemOptions) Defaults() Customizations {
	return Customizations{
		Size:  o.Sizes.Default(),
		Milk:  o.Milk.Default(),
		Shots: o.Shots.Default(),
		Mixer: o.Mixer.Default(),
	}
}

// Allows reports whether every chosen value is offered. Empty choices are
// always allowed.
func (o ItemOptions) Allows(c Customizations) error {
	checks := []struct {
		name   string
		chosen string
		offer  OptionValues
	}{
		{"size", c.Size, o.Sizes},
		{"milk", c.Milk, o.Milk},
		{"shots", c.Shots, o.Shots},
		{"mixer", c.Mixer, o.Mixer},
	}
	for _, ch := range checks {
		if ch.chosen != "" && !ch.offer.Contains(ch.chosen) {
			return fmt.Errorf("%s %q is not offered for this item", ch.name, ch.chosen)
		}
	}
	return nil
}
