package scheduler

import (
	"testing"

	"github.com/hibiken/asynq"
)

func TestLeadFollowUpTaskRoundTrip(t *testing.T) {
	task, err := NewLeadFollowUpTask(LeadFollowUpPayload{LeadID: "lead-1"})
	if err != nil {
		t.Fatalf("NewLeadFollowUpTask: %v", err)
	}
	if task.Type() != TaskLeadFollowUp {
		t.Fatalf("unexpected task type %q", task.Type())
	}

	payload, err := ParseLeadFollowUpPayload(task)
	if err != nil {
		t.Fatalf("ParseLeadFollowUpPayload: %v", err)
	}
	if payload.LeadID != "lead-1" {
		t.Fatalf("expected lead-1, got %q", payload.LeadID)
	}
}

func TestParseLeadFollowUpPayloadRejectsGarbage(t *testing.T) {
	task := asynq.NewTask(TaskLeadFollowUp, []byte("not json"))
	if _, err := ParseLeadFollowUpPayload(task); err == nil {
		t.Fatalf("expected parse error")
	}
}
