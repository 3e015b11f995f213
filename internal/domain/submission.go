package domain

import "time"

// SessionStatus 表示表单会话的当前状态，同一时刻只有一个状态成立。
type SessionStatus string

const (
	StatusIdle      SessionStatus = "idle"
	StatusUploading SessionStatus = "uploading"
	StatusSending   SessionStatus = "sending"
	StatusSucceeded SessionStatus = "succeeded"
	StatusFailed    SessionStatus = "failed"
)

// Busy 报告该状态下是否有提交正在进行。
func (s SessionStatus) Busy() bool {
	return s == StatusUploading || s == StatusSending
}

// FormFields 是联系表单中用户填写的字段。
type FormFields struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// IsZero 报告表单是否为空。
func (f FormFields) IsZero() bool {
	return f.Name == "" && f.Email == "" && f.Message == ""
}

// SubmissionPayload 是交给邮件发送服务的最终字段集合，构建后不可修改。
type SubmissionPayload struct {
	SenderName         string `json:"from_name"`
	SenderEmail        string `json:"reply_to"`
	MessageBody        string `json:"message"`
	RecipientOverride  string `json:"to_email,omitempty"`
	AttachmentNames    string `json:"attachment_names"`
	AttachmentURLs     string `json:"file_urls"`
	AttachmentURLsHTML string `json:"file_urls_html"`
	OrderID            string `json:"order_id"`
}

// Outcome 记录一次提交尝试的结果。
type Outcome struct {
	Status      SessionStatus `json:"status"`
	OrderID     string        `json:"orderId,omitempty"`
	Attachments int           `json:"attachments"`
	Reason      string        `json:"reason,omitempty"`
	FinishedAt  time.Time     `json:"finishedAt"`
}

// OrderCounter 是 SQL 计数器表的行结构。
type OrderCounter struct {
	Name      string    `json:"name" gorm:"primaryKey;type:varchar(64)"`
	Value     int64     `json:"value" gorm:"not null;default:0"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName 指定计数器表名。
func (OrderCounter) TableName() string {
	return "order_counters"
}
