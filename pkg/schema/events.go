package schema

// Event type constants for the append-only event log.
const (
	EventExecutionStarted   = "execution_started"
	EventExecutionCompleted = "execution_completed"
	EventExecutionFailed    = "execution_failed"
	EventExecutionCancelled = "execution_cancelled"

	EventStepStarted   = "step_started"
	EventStepCompleted = "step_completed"
	EventStepFailed    = "step_failed"
	EventStepSkipped   = "step_skipped"
	EventStepRetrying  = "step_retrying"

	EventConditionEvaluated = "condition_evaluated"

	EventMessageSent      = "message_sent"
	EventMessageDelivered = "message_delivered"
	EventMessageProcessed = "message_processed"
	EventMessageFailed    = "message_failed"

	EventScheduleTriggered = "schedule_triggered"
)
