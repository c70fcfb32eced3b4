package sharding

import (
	"fmt"
	"hash/crc32"
)

// ShardCount is the fixed number of partitions for the order feed. Publishers
// and the notifier's lane pool both derive placement from it, so events for
// one order always land on one lane.
const ShardCount = 1024

// GetShardID calculates the deterministic shard ID for a given order ID.
func GetShardID(orderID string) int {
	checksum := crc32.ChecksumIEEE([]byte(orderID))
	return int(checksum % ShardCount)
}

// ChangeSubject returns the NATS subject for an order change record.
// Format: orders.change.{shard_id}.{order_id}
func ChangeSubject(orderID string) string {
	return fmt.Sprintf("orders.change.%d.%s", GetShardID(orderID), orderID)
}
