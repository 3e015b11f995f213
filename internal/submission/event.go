package submission

import (
	"time"

	"portfolio/backend/internal/domain"
	"portfolio/backend/internal/notify"
)

// EventType 会话事件类型
type EventType string

const (
	EventStatus       EventType = "status"
	EventProgress     EventType = "progress"
	EventSelection    EventType = "selection"
	EventNotification EventType = "notification"
)

// Event 推送给观察者的会话变化
type Event struct {
	Type         EventType            `json:"type"`
	SessionID    string               `json:"sessionId"`
	Status       domain.SessionStatus `json:"status,omitempty"`
	Progress     *domain.Progress     `json:"progress,omitempty"`
	Files        []domain.Attachment  `json:"files,omitempty"`
	Notification *notify.Notification `json:"notification,omitempty"`
	InlineError  string               `json:"inlineError,omitempty"`
	Outcome      *domain.Outcome      `json:"outcome,omitempty"`
	Timestamp    time.Time            `json:"timestamp"`
}

// Snapshot 会话状态快照，供轮询使用
type Snapshot struct {
	ID            string                `json:"id"`
	Status        domain.SessionStatus  `json:"status"`
	Form          domain.FormFields     `json:"form"`
	Files         []domain.Attachment   `json:"files"`
	TotalBytes    int64                 `json:"totalBytes"`
	MaxBytes      int64                 `json:"maxBytes"`
	Progress      map[int]int           `json:"progress"`
	InlineError   string                `json:"inlineError,omitempty"`
	LastOutcome   *domain.Outcome       `json:"lastOutcome,omitempty"`
	Notifications []notify.Notification `json:"notifications"`
}

// Recorder 记录提交流程的指标
type Recorder interface {
	ObserveSubmission(status string)
	ObserveUpload(result string, files int, bytes int64)
	ObserveDispatch(result string, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveSubmission(string)              {}
func (nopRecorder) ObserveUpload(string, int, int64)      {}
func (nopRecorder) ObserveDispatch(string, time.Duration) {}
