package orders

import (
	"cmp"
	"strconv"
	"strings"
)

const TopicOrderPlaced = "order.placed"

// Topic returns the configured notification topic, or TopicOrderPlaced
// when none is set.
func Topic(configured string) string {
	return cmp.Or(strings.TrimSpace(configured), TopicOrderPlaced)
}

// Partition key = order id, so redeliveries of one order stay ordered.
func PartitionKey(orderID int64) []byte { return []byte(strconv.FormatInt(orderID, 10)) }
