package orders

import "testing"

func TestQuoteBelowFreeShippingThreshold(t *testing.T) {
	// two items at $40 each: $80 subtotal, flat shipping, 15% tax
	shipping, tax, total := DefaultPricing().Quote(8000)

	if shipping != 1000 {
		t.Errorf("shipping = %d, want 1000", shipping)
	}
	if tax != 1200 {
		t.Errorf("tax = %d, want 1200", tax)
	}
	if total != 10200 {
		t.Errorf("total = %d, want 10200", total)
	}
}

func TestQuoteAboveFreeShippingThreshold(t *testing.T) {
	// $150 subtotal: free shipping, 15% tax
	shipping, tax, total := DefaultPricing().Quote(15000)

	if shipping != 0 {
		t.Errorf("shipping = %d, want 0", shipping)
	}
	if tax != 2250 {
		t.Errorf("tax = %d, want 2250", tax)
	}
	if total != 17250 {
		t.Errorf("total = %d, want 17250", total)
	}
}

func TestQuoteAtThresholdChargesShipping(t *testing.T) {
	// free shipping requires strictly more than the threshold
	shipping, _, _ := DefaultPricing().Quote(10000)
	if shipping != 1000 {
		t.Errorf("shipping = %d, want 1000", shipping)
	}
}

func TestQuoteTotalInvariant(t *testing.T) {
	pricing := Pricing{
		FreeShippingThreshold: 5000,
		FlatShippingPrice:     750,
		TaxRateBasisPoints:    825,
	}

	for _, itemsPrice := range []int64{0, 1, 999, 5000, 5001, 123456} {
		shipping, tax, total := pricing.Quote(itemsPrice)
		if total != itemsPrice+shipping+tax {
			t.Errorf("Quote(%d): total %d != %d + %d + %d", itemsPrice, total, itemsPrice, shipping, tax)
		}
	}
}
