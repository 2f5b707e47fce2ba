package stock

// Item kinds
const (
	KindInstant = "instant"
	KindOrder   = "order"
	KindCustom  = "custom"
	KindHidden  = "hidden"
)

// Item represents a sellable catalog entry in the stock DynamoDB table.
// Quantity is nil for unlimited items; the stored item then carries no
// qty attribute at all, which is what the guarded decrement keys off.
type Item struct {
	Name     string  `dynamodbav:"name"` // PK
	Price    float64 `dynamodbav:"price"`
	Kind     string  `dynamodbav:"kind"`
	Quantity *int    `dynamodbav:"qty,omitempty"`
}

// Bounded reports whether the item tracks a finite quantity.
func (i Item) Bounded() bool { return i.Quantity != nil }

// HiddenCategory is a priced category whose fulfillment payloads are
// pre-loaded opaque strings consumed in FIFO order.
type HiddenCategory struct {
	Name     string   `dynamodbav:"name"` // PK
	Price    float64  `dynamodbav:"price"`
	Payloads []string `dynamodbav:"payloads"`
}

// ValidKind reports whether k names a known item kind.
func ValidKind(k string) bool {
	switch k {
	case KindInstant, KindOrder, KindCustom, KindHidden:
		return true
	}
	return false
}
