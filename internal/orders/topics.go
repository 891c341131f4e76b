package orders

const (
	TopicOrderCreated  = "order.created"
	TopicPaymentResult = "payment.result"
	TopicOrderSettled  = "order.settled"
)

// Partition key = order_id, so every event for one order keeps its ordering.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
