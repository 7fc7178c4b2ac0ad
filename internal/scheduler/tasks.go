package scheduler

import (
	"time"

	"zapflow_backend/internal/automation/domain"

	"github.com/hibiken/asynq"
)

// TaskAutomationEvent carries one encoded trigger event.
const TaskAutomationEvent = "automation.event"

// automationTaskTimeout bounds one ProcessEvent call including every
// rule's gateway send.
const automationTaskTimeout = 2 * time.Minute

func NewAutomationEventTask(event domain.Event) (*asynq.Task, error) {
	data, err := domain.Encode(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAutomationEvent, data, asynq.Timeout(automationTaskTimeout)), nil
}

// ParseAutomationEventPayload rejects unknown event types.
func ParseAutomationEventPayload(task *asynq.Task) (domain.Event, error) {
	return domain.Decode(task.Payload())
}
