package orders

// Pricing is the deployment's shipping and tax policy. All amounts are
// cents; the tax rate is basis points so totals stay integral.
type Pricing struct {
	FreeShippingThreshold int64
	FlatShippingPrice     int64
	TaxRateBasisPoints    int64
}

// DefaultPricing: free shipping over $100, flat $10 shipping, 15% tax.
func DefaultPricing() Pricing {
	return Pricing{
		FreeShippingThreshold: 10000,
		FlatShippingPrice:     1000,
		TaxRateBasisPoints:    1500,
	}
}

// Quote derives shipping, tax, and total from the items subtotal.
// total is always itemsPrice + shipping + tax.
func (p Pricing) Quote(itemsPrice int64) (shipping, tax, total int64) {
	shipping = p.FlatShippingPrice
	if itemsPrice > p.FreeShippingThreshold {
		shipping = 0
	}
	tax = itemsPrice * p.TaxRateBasisPoints / 10000
	total = itemsPrice + shipping + tax
	return shipping, tax, total
}
