package redis

import "fmt"

const keyPrefix = "storefront"

// MarkerKey 批量下单标记键，name 由调用方规范化（如 order_batch_<email>）。
func MarkerKey(name string) string {
	return fmt.Sprintf("%s:marker:%s", keyPrefix, name)
}

// RateLimitKey 下单限流键，kind 为 email 或 ip。
func RateLimitKey(kind, id string) string {
	return fmt.Sprintf("%s:rate_limit:checkout:%s:%s", keyPrefix, kind, id)
}
