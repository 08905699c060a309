package enums

import (
	"fmt"
	"strings"
)

// FulfillmentScheme distinguishes marketplace-fulfilled (FBO) from
// seller-fulfilled (FBS) postings.
type FulfillmentScheme string

const (
	SchemeFBO FulfillmentScheme = "fbo"
	SchemeFBS FulfillmentScheme = "fbs"
)

var validSchemes = []FulfillmentScheme{SchemeFBO, SchemeFBS}

func (s FulfillmentScheme) String() string {
	return string(s)
}

func (s FulfillmentScheme) IsValid() bool {
	for _, candidate := range validSchemes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseFulfillmentScheme is case-insensitive.
func ParseFulfillmentScheme(value string) (FulfillmentScheme, error) {
	normalized := FulfillmentScheme(strings.ToLower(strings.TrimSpace(value)))
	if normalized.IsValid() {
		return normalized, nil
	}
	return "", fmt.Errorf("invalid fulfillment scheme %q", value)
}

// SKUOfferType tags a sku-to-offer mapping row with its origin.
type SKUOfferType string

const (
	SKUOfferFBO        SKUOfferType = "fbo"
	SKUOfferFBS        SKUOfferType = "fbs"
	SKUOfferDiscounted SKUOfferType = "discounted"
)

func (t SKUOfferType) String() string {
	return string(t)
}

// OrderStatus values after which a posting no longer changes.
const (
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)

// TerminalOrderStatuses lists statuses excluded from the order horizon.
var TerminalOrderStatuses = []string{OrderStatusDelivered, OrderStatusCancelled}
