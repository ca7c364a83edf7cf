package notify

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/polarmet/wrfpipe/internal/domain"
)

func TestSlackMessage_Build(t *testing.T) {
	msg := SlackMessage{
		Text: "Run completed",
		Attachments: []SlackAttachment{
			{
				Color: "good",
				Title: "arctic2020",
				Text:  "7 stages finished",
			},
		},
	}

	payload, err := msg.ToJSON()
	if err != nil {
		t.Fatal(err)
	}

	if len(payload) == 0 {
		t.Error("Payload should not be empty")
	}
}

func TestSlackNotifier_Send(t *testing.T) {
	// Mock Slack server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(server.URL)
	err := notifier.Send(Notification{
		Title:   "Test",
		Message: "Test message",
		Type:    NotifyInfo,
	})

	if err != nil {
		t.Errorf("Send failed: %v", err)
	}
}

func TestNotificationTypeColors(t *testing.T) {
	tests := []struct {
		typ  NotificationType
		want string
	}{
		{NotifySuccess, "good"},
		{NotifyWarning, "warning"},
		{NotifyError, "danger"},
		{NotifyInfo, "#439FE0"},
	}

	for _, tt := range tests {
		got := SlackColor(tt.typ)
		if got != tt.want {
			t.Errorf("SlackColor(%v) = %s, want %s", tt.typ, got, tt.want)
		}
	}
}

func TestUrgency(t *testing.T) {
	tests := []struct {
		typ  NotificationType
		want string
	}{
		{NotifyError, "critical"},
		{NotifyWarning, "normal"},
		{NotifySuccess, "low"},
		{NotifyInfo, "low"},
	}

	for _, tt := range tests {
		if got := Urgency(tt.typ); got != tt.want {
			t.Errorf("Urgency(%v) = %s, want %s", tt.typ, got, tt.want)
		}
	}
}

func TestMultiNotifier(t *testing.T) {
	var called []string

	mock1 := &mockNotifier{name: "mock1", calls: &called}
	mock2 := &mockNotifier{name: "mock2", calls: &called}

	multi := NewMultiNotifier(mock1, mock2)
	multi.Send(Notification{Title: "Test"})

	if len(called) != 2 {
		t.Errorf("Expected 2 calls, got %d", len(called))
	}
}

func TestForResult_Completed(t *testing.T) {
	result := &domain.PipelineResult{
		RunID:     "run-1",
		Case:      "arctic2020",
		Status:    domain.RunCompleted,
		OutputDir: "/out/arctic2020/2020031500",
		Stages: []domain.StageResult{
			{Stage: "geogrid", Outcome: domain.Success("ok")},
			{Stage: "ungrib", Outcome: domain.Success("ok")},
		},
	}

	n := ForResult(result, nil)
	if n.Type != NotifySuccess {
		t.Errorf("Type = %v, want success", n.Type)
	}
	if n.Case != "arctic2020" {
		t.Errorf("Case = %q", n.Case)
	}
}

func TestForResult_FailedNamesTheStage(t *testing.T) {
	result := &domain.PipelineResult{
		RunID:  "run-2",
		Case:   "arctic2020",
		Status: domain.RunFailed,
		Stages: []domain.StageResult{
			{Stage: "geogrid", Outcome: domain.Success("ok")},
			{Stage: "ungrib", Outcome: domain.Failure(`found failure marker "FATAL"`)},
		},
	}

	n := ForResult(result, errors.New("stage ungrib failed"))
	if n.Type != NotifyError {
		t.Errorf("Type = %v, want error", n.Type)
	}
	if n.Message == "" || n.Message[:12] != "stage ungrib" {
		t.Errorf("Message = %q, should name the failing stage", n.Message)
	}
}

type mockNotifier struct {
	name  string
	calls *[]string
}

func (m *mockNotifier) Send(n Notification) error {
	*m.calls = append(*m.calls, m.name)
	return nil
}
