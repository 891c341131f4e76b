package redisx

import "time"

const (
	// Cart view per user: cart:{user_id}
	KeyCart = "cart:%s"

	// Order list per user: user_orders:{user_id}
	KeyUserOrders = "user_orders:%s"

	// Product detail: product:{product_id}
	KeyProduct = "product:%s"

	// Product listing, keyed by the serialized query params.
	KeyProductList     = "product:list:%s"
	PatternProductList = "product:list:*"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLCart        = 60 * time.Second
	TTLUserOrders  = 180 * time.Second
	TTLProduct     = 300 * time.Second
	TTLProductList = 300 * time.Second
	TTLDedup       = 48 * time.Hour
)
