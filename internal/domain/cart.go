package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	MinLineQuantity = 1
	MaxLineQuantity = 100
)

// Customizations holds the single-valued drink options. An empty string means
// the option was not chosen.
type Customizations struct {
	Size  string `json:"size,omitempty"`
	Milk  string `json:"milk,omitempty"`
	Shots string `json:"shots,omitempty"`
	Mixer string `json:"mixer,omitempty"`
}

// WithDefaults fills every unchosen option from d.
func (c Customizations) WithDefaults(d Customizations) Customizations {
	if c.Size == "" {
		c.Size = d.Size
	}
	if c.Milk == "" {
		c.Milk = d.Milk
	}
	if c.Shots == "" {
		c.Shots = d.Shots
	}
	if c.Mixer == "" {
		c.Mixer = d.Mixer
	}
	return c
}

// CartLine is one row of the cart. Name, description, image and price are a
// snapshot taken when the line was added.
type CartLine struct {
	ProductID      string          `json:"productId"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	Image          string          `json:"image,omitempty"`
	UnitPrice      decimal.Decimal `json:"price"`
	Quantity       int             `json:"quantity"`
	Customizations Customizations  `json:"customizations"`
}

// LineKey identifies a cart line: the product plus every customization.
type LineKey struct {
	ProductID string
	Size      string
	Milk      string
	Shots     string
	Mixer     string
}

func (l CartLine) Key() LineKey {
	return LineKey{
		ProductID: l.ProductID,
		Size:      l.Customizations.Size,
		Milk:      l.Customizations.Milk,
		Shots:     l.Customizations.Shots,
		Mixer:     l.Customizations.Mixer,
	}
}

// Subtotal is UnitPrice * Quantity, unrounded.
func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// ID is a stable opaque identifier for the key, safe to put in a URL path.
func (k LineKey) ID() string {
	var b strings.Builder
	for _, field := range []string{k.ProductID, k.Size, k.Milk, k.Shots, k.Mixer} {
		// length-prefixed so ("a-b","") and ("a","b") never collide
		b.WriteString(strconv.Itoa(len(field)))
		b.WriteByte(':')
		b.WriteString(field)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:16])
}
