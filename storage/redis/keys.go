package redis

// Redis key naming conventions for distill data.
// All keys are prefixed with "distill:" to avoid collisions.

const keyPrefix = "distill:"

// nsKey returns the Hash key for an output namespace: distill:kv:{namespace}
func nsKey(namespace string) string { return keyPrefix + "kv:" + namespace }

// dlqKey returns the key for a DLQ entry: distill:dlq:{id}
func dlqKey(id string) string { return keyPrefix + "dlq:" + id }

// dlqIDsKey is the Set tracking all DLQ entry IDs for enumeration.
const dlqIDsKey = keyPrefix + "dlq_ids"
