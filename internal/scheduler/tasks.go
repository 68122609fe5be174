package scheduler

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const TaskAgentLookupRetry = "agents.lookup_retry"

type AgentLookupRetryPayload struct {
	LeadID  int64 `json:"leadId"`
	Attempt int   `json:"attempt"`
}

// AgentLookupTaskID names the retry of one attempt for one lead. Enqueuing
// the same attempt twice collapses into one task.
func AgentLookupTaskID(leadID int64, attempt int) string {
	return fmt.Sprintf("agent-lookup:%d:%d", leadID, attempt)
}

func NewAgentLookupRetryTask(payload AgentLookupRetryPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAgentLookupRetry, data), nil
}

func ParseAgentLookupRetryPayload(task *asynq.Task) (AgentLookupRetryPayload, error) {
	var payload AgentLookupRetryPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return AgentLookupRetryPayload{}, err
	}
	return payload, nil
}
