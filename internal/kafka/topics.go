package kafka

// Topic names shared by the sweeper, ranker and notifier.
const (
	// TopicOutbound carries reminder deliveries from the sweeper to the
	// notifier.
	TopicOutbound = "notifications.outbound"
	// TopicScores carries re-rank batches to live-update subscribers.
	TopicScores = "tasks.scores"
	// TopicDLQ receives deliveries that exhausted their retries.
	TopicDLQ = "notifications.dlq"
)
