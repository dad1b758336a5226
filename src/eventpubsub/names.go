package eventpubsub

const (
	AutomationEventTopic = "AutomationEvent"
	FireDecisionTopic    = "FireDecision"
	ExecutionResultTopic = "ExecutionResult"
	ErrorTopic           = "DefaultError"
)
