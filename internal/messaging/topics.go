package messaging

const (
	TopicCheckoutEvents = "checkout.events"
	TopicOrderCreated   = "order.created"
	TopicOrderPaid      = "order.paid"
)
