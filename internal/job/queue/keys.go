package queue

import "github.com/bwmarrin/snowflake"

// Redis key layout. The ready list and delayed set hold job ids only; the
// database row is the source of truth for job state.
const (
	readyKey   = "jobs:ready"
	delayedKey = "jobs:delayed"
)

func heartbeatKey(id snowflake.ID) string {
	return "jobs:heartbeat:" + id.String()
}

func cancelKey(id snowflake.ID) string {
	return "jobs:cancel:" + id.String()
}
