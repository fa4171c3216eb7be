package domain

// ShippingPolicy adds a flat surcharge to small orders. Amounts are in minor units.
type ShippingPolicy struct {
	FreeShippingThreshold int64
	Surcharge             int64
}

// Total applies the surcharge when subtotal is in (0, FreeShippingThreshold].
func (p ShippingPolicy) Total(subtotal int64) int64 {
	if subtotal > 0 && subtotal <= p.FreeShippingThreshold {
		return subtotal + p.Surcharge
	}
	return subtotal
}
