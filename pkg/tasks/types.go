// Package tasks decodes inbound work, routes it, and carries fan-out messages over Asynq
package tasks

import "strings"

const (
	// TypeHarvestGeo is the task type of one fan-out message
	TypeHarvestGeo = "harvest:geo"
	// QueuePrefix prefixes the per-table queue names
	QueuePrefix = "harvest-"
)

// QueueName returns the queue that carries a table's messages
func QueueName(table string) string {
	return QueuePrefix + table
}

// TableFromQueue recovers the table from a queue name, empty when the queue is not a harvest queue
func TableFromQueue(queue string) string {
	table, ok := strings.CutPrefix(queue, QueuePrefix)
	if !ok {
		return ""
	}

	return table
}
