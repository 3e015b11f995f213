package submission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"portfolio/backend/internal/attachment"
	"portfolio/backend/internal/domain"
	"portfolio/backend/internal/notify"
	"portfolio/backend/internal/payload"
)

const successMessage = "Message sent successfully!"

// Session 一个表单实例的提交状态机
//
//	Idle -> Uploading -> Sending -> Succeeded | Failed -> Idle
//	Idle -> Sending -> Succeeded | Failed -> Idle（没有附件时）
//
// 上传或发送进行中收到的提交、选择、删除请求都返回 domain.ErrSubmitInProgress，不改变状态。
type Session struct {
	id        string
	svc       *Service
	log       *zap.Logger
	selection *attachment.Selection

	mu          sync.Mutex
	status      domain.SessionStatus
	form        domain.FormFields
	progress    map[int]int
	inlineError string
	last        *domain.Outcome
	lastActive  time.Time

	subMu   sync.RWMutex
	subs    map[int]chan Event
	nextSub int
	closed  bool
}

func newSession(id string, svc *Service) *Session {
	return &Session{
		id:         id,
		svc:        svc,
		log:        svc.opts.Logger.With(zap.String("session", id)),
		selection:  attachment.NewSelection(svc.opts.MaxAttachmentBytes),
		status:     domain.StatusIdle,
		progress:   make(map[int]int),
		lastActive: time.Now(),
		subs:       make(map[int]chan Event),
	}
}

// ID 返回会话ID
func (s *Session) ID() string {
	return s.id
}

// Status 返回当前状态
func (s *Session) Status() domain.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastActive 返回最后一次用户操作的时间
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Snapshot 返回当前状态的副本
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	progress := make(map[int]int, len(s.progress))
	for k, v := range s.progress {
		progress[k] = v
	}
	snap := Snapshot{
		ID:          s.id,
		Status:      s.status,
		Form:        s.form,
		Progress:    progress,
		InlineError: s.inlineError,
	}
	if s.last != nil {
		last := *s.last
		snap.LastOutcome = &last
	}
	s.mu.Unlock()

	snap.Files = s.selection.Files()
	snap.TotalBytes = s.selection.TotalBytes()
	snap.MaxBytes = s.selection.MaxBytes()
	snap.Notifications = s.svc.opts.Notifier.List(s.id)
	return snap
}

// Select 用新的附件列表替换当前选择
//
// 总大小超过上限时整批拒绝，之前的选择和进度都被清空，并设置行内错误和提示。
func (s *Session) Select(files []domain.Attachment) ([]domain.Attachment, error) {
	s.mu.Lock()
	if s.status.Busy() {
		s.mu.Unlock()
		return nil, domain.ErrSubmitInProgress
	}
	s.touchLocked()

	selected, err := s.selection.Select(files)
	s.progress = make(map[int]int)
	if err != nil {
		s.inlineError = domain.UserMessage(err)
	} else {
		s.inlineError = ""
	}
	inline := s.inlineError
	s.mu.Unlock()

	s.publish(Event{Type: EventSelection, Files: s.selection.Files(), InlineError: inline})

	if err != nil {
		s.log.Info("Attachment selection rejected", zap.Error(err))
		s.pushNotification(notify.LevelError, inline)
		return nil, err
	}
	return selected, nil
}

// Remove 删除一个附件
func (s *Session) Remove(index int) ([]domain.Attachment, error) {
	s.mu.Lock()
	if s.status.Busy() {
		s.mu.Unlock()
		return nil, domain.ErrSubmitInProgress
	}
	s.touchLocked()

	files, err := s.selection.Remove(index)
	if err == nil {
		s.progress = make(map[int]int)
	}
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	s.publish(Event{Type: EventSelection, Files: files})
	return files, nil
}

// Clear 清空附件和进度
func (s *Session) Clear() error {
	s.mu.Lock()
	if s.status.Busy() {
		s.mu.Unlock()
		return domain.ErrSubmitInProgress
	}
	s.touchLocked()
	s.selection.Clear()
	s.progress = make(map[int]int)
	s.mu.Unlock()

	s.publish(Event{Type: EventSelection, Files: []domain.Attachment{}})
	return nil
}

// Submit 执行一次完整的提交
//
// 返回值:
//   - *domain.Outcome: 本次尝试的结果，表单校验失败或重复提交时为 nil
//   - error: 失败原因，可用 domain.Classify 分类
func (s *Session) Submit(ctx context.Context, form domain.FormFields) (*domain.Outcome, error) {
	s.mu.Lock()
	if s.status.Busy() {
		s.mu.Unlock()
		s.log.Debug("Submit ignored while busy")
		return nil, domain.ErrSubmitInProgress
	}
	s.touchLocked()
	s.inlineError = ""
	form = form.Normalize()
	s.form = form

	if err := domain.ValidateForm(form); err != nil {
		s.inlineError = domain.UserMessage(err)
		s.mu.Unlock()
		s.pushNotification(notify.LevelError, domain.UserMessage(err))
		return nil, err
	}

	files := s.selection.Files()

	if !s.svc.MailConfigured() {
		s.mu.Unlock()
		err := fmt.Errorf("%w: email service credentials are not set", domain.ErrConfigurationMissing)
		return s.fail(files, "", err), err
	}
	if len(files) > 0 && !s.svc.UploadConfigured() {
		s.mu.Unlock()
		err := fmt.Errorf("%w: upload service credentials are not set", domain.ErrConfigurationMissing)
		return s.fail(files, "", err), err
	}

	next := domain.StatusSending
	if len(files) > 0 {
		next = domain.StatusUploading
		s.progress = make(map[int]int, len(files))
		for i := range files {
			s.progress[i] = 0
		}
	}
	s.status = next
	s.mu.Unlock()
	s.publish(Event{Type: EventStatus, Status: next})

	results := []domain.UploadResult{}
	if len(files) > 0 {
		var err error
		results, err = s.upload(ctx, files)
		if err != nil {
			return s.fail(files, "", err), err
		}
		s.setStatus(domain.StatusSending)
	}

	p, err := s.svc.opts.Builder.Build(ctx, form, results, files, s.svc.opts.RecipientOverride)
	if err != nil {
		return s.fail(files, "", err), err
	}
	if err := payload.CheckSize(p, s.svc.opts.MaxPayloadBytes); err != nil {
		return s.fail(files, p.OrderID, err), err
	}

	start := time.Now()
	err = s.svc.opts.Dispatcher.Send(ctx, p)
	s.svc.opts.Recorder.ObserveDispatch(resultLabel(err), time.Since(start))
	if err != nil {
		return s.fail(files, p.OrderID, err), err
	}

	return s.succeed(files, p.OrderID), nil
}

func (s *Session) upload(ctx context.Context, files []domain.Attachment) ([]domain.UploadResult, error) {
	if s.svc.opts.Uploader == nil {
		return nil, fmt.Errorf("%w: upload service credentials are not set", domain.ErrConfigurationMissing)
	}

	ch := make(chan domain.Progress, len(files)*8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range ch {
			s.recordProgress(p)
		}
	}()

	results, err := s.svc.opts.Uploader.UploadAll(ctx, files, ch)
	close(ch)
	<-done

	s.svc.opts.Recorder.ObserveUpload(resultLabel(err), len(files), domain.TotalSize(files))
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Session) recordProgress(p domain.Progress) {
	s.mu.Lock()
	if p.Percent > s.progress[p.Index] {
		s.progress[p.Index] = p.Percent
	}
	s.mu.Unlock()

	progress := p
	s.publish(Event{Type: EventProgress, Progress: &progress})
}

func (s *Session) succeed(files []domain.Attachment, orderID string) *domain.Outcome {
	outcome := &domain.Outcome{
		Status:      domain.StatusSucceeded,
		OrderID:     orderID,
		Attachments: len(files),
		FinishedAt:  time.Now(),
	}

	s.mu.Lock()
	s.status = domain.StatusSucceeded
	s.last = outcome
	s.form = domain.FormFields{}
	s.inlineError = ""
	s.progress = make(map[int]int)
	s.selection.Clear()
	s.mu.Unlock()

	s.svc.opts.Recorder.ObserveSubmission(string(domain.StatusSucceeded))
	s.log.Info("Contact message sent",
		zap.String("order_id", orderID),
		zap.Int("attachments", len(files)))

	s.publish(Event{Type: EventStatus, Status: domain.StatusSucceeded, Outcome: outcome})
	s.publish(Event{Type: EventSelection, Files: []domain.Attachment{}})

	text := successMessage
	if orderID != "" {
		text += " Order " + orderID
	}
	s.pushNotification(notify.LevelSuccess, text)

	s.setStatus(domain.StatusIdle)
	return outcome
}

// fail 记录失败结果，表单、附件和进度都保留以便重试
func (s *Session) fail(files []domain.Attachment, orderID string, err error) *domain.Outcome {
	msg := domain.UserMessage(err)
	outcome := &domain.Outcome{
		Status:      domain.StatusFailed,
		OrderID:     orderID,
		Attachments: len(files),
		Reason:      msg,
		FinishedAt:  time.Now(),
	}

	s.mu.Lock()
	s.status = domain.StatusFailed
	s.last = outcome
	s.inlineError = msg
	s.mu.Unlock()

	s.svc.opts.Recorder.ObserveSubmission(string(domain.StatusFailed))
	s.log.Warn("Contact message failed",
		zap.String("reason", domain.Classify(err).Error()),
		zap.Error(err))

	s.publish(Event{Type: EventStatus, Status: domain.StatusFailed, Outcome: outcome, InlineError: msg})
	s.pushNotification(notify.LevelError, msg)

	s.setStatus(domain.StatusIdle)
	return outcome
}

func (s *Session) setStatus(status domain.SessionStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
	s.publish(Event{Type: EventStatus, Status: status})
}

func (s *Session) touchLocked() {
	s.lastActive = time.Now()
}

func (s *Session) pushNotification(level notify.Level, text string) {
	n := s.svc.opts.Notifier.Push(s.id, level, text)
	s.publish(Event{Type: EventNotification, Notification: &n})
}

// Subscribe 订阅会话事件，返回的函数用于取消订阅
//
// 观察者处理过慢时事件会被丢弃，最新状态始终可以通过 Snapshot 获取。
func (s *Session) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	s.subMu.Lock()
	if s.closed {
		s.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
			s.subMu.Unlock()
		})
	}
}

func (s *Session) publish(e Event) {
	e.SessionID = s.id
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for _, ch := range s.subs {
		select {
		case ch <- e:
		default:
			s.log.Warn("Event subscriber blocked, dropping event", zap.String("type", string(e.Type)))
		}
	}
}

// Close 关闭所有订阅并移除会话的提示
func (s *Session) Close() {
	s.subMu.Lock()
	if !s.closed {
		s.closed = true
		for id, ch := range s.subs {
			close(ch)
			delete(s.subs, id)
		}
	}
	s.subMu.Unlock()

	s.svc.opts.Notifier.ClearSession(s.id)
}

func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	if errors.Is(err, domain.ErrConfigurationMissing) {
		return "unconfigured"
	}
	return "failure"
}
