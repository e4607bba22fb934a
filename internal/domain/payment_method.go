package domain

type PaymentMethod struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Type        PaymentMethodType `json:"type"`
	Icon        string            `json:"icon"`
	Description string            `json:"description"`
}

// PaymentMethods is the fixed set offered at checkout.
var PaymentMethods = []PaymentMethod{
	{
		ID:          "cash",
		Name:        "Cash on Delivery",
		Type:        PaymentMethodCash,
		Icon:        "💵",
		Description: "Pay when your order is delivered",
	},
	{
		ID:          "card",
		Name:        "Credit/Debit Card",
		Type:        PaymentMethodCard,
		Icon:        "💳",
		Description: "Pay securely with your card",
	},
}

// LookupPaymentMethod returns the catalogue entry for id.
func LookupPaymentMethod(id string) (PaymentMethod, bool) {
	for _, m := range PaymentMethods {
		if m.ID == id {
			return m, true
		}
	}
	return PaymentMethod{}, false
}
