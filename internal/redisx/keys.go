package redisx

import "time"

const (
	// Popular products listing (JSON array), evicted on every placement and product mutation.
	KeyPopularProducts = "popular_products"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLPopular = time.Hour
	TTLDedup   = 48 * time.Hour
)
