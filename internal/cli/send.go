package cli

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"portfolio/backend/internal/counter"
	"portfolio/backend/internal/domain"
	"portfolio/backend/internal/mail"
	"portfolio/backend/internal/notify"
	"portfolio/backend/internal/payload"
	"portfolio/backend/internal/submission"
	"portfolio/backend/internal/upload"
)

type sendOptions struct {
	name    string
	email   string
	message string
	attach  []string
	to      string
}

func newSendCmd() *cobra.Command {
	var opts sendOptions

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one contact message",
		Long: `Send one contact message through the configured providers.

Attachments are uploaded first, then the message is sent with their
links. Status changes and upload progress are printed as they happen.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			orderCounter, closer, err := counter.Open(ctx, cfg, log)
			if err != nil {
				return fmt.Errorf("invalid order counter configuration: %w", err)
			}
			defer closer.Close()

			uploader, err := upload.New(ctx, upload.NewConfig(cfg.Upload, cfg.S3), log)
			if err != nil {
				return fmt.Errorf("failed to initialize upload client: %w", err)
			}
			mailer, err := mail.New(mail.NewConfig(cfg.Mail, cfg.SMTP), log)
			if err != nil {
				return fmt.Errorf("failed to initialize mail client: %w", err)
			}

			recipient := cfg.Mail.Recipient
			if opts.to != "" {
				recipient = opts.to
			}

			svc := submission.NewService(submission.Options{
				Uploader:           uploader,
				Dispatcher:         mailer,
				Builder:            payload.NewBuilder(orderCounter, log),
				Notifier:           notify.NewCenter(cfg.Notify.TTL),
				Logger:             log,
				MaxAttachmentBytes: cfg.Limits.MaxAttachmentBytes,
				MaxPayloadBytes:    cfg.Limits.MaxPayloadBytes,
				RecipientOverride:  recipient,
			})

			files, err := localAttachments(opts.attach)
			if err != nil {
				return err
			}

			form := domain.FormFields{Name: opts.name, Email: opts.email, Message: opts.message}
			_, err = runSend(ctx, svc.NewSession(uuid.NewString()), form, files, cmd.OutOrStdout())
			return err
		},
	}

	cmd.Flags().StringVar(&opts.name, "name", "", "sender name")
	cmd.Flags().StringVar(&opts.email, "email", "", "sender email, used as reply-to")
	cmd.Flags().StringVarP(&opts.message, "message", "m", "", "message body")
	cmd.Flags().StringArrayVarP(&opts.attach, "attach", "a", nil, "file to attach (repeatable)")
	cmd.Flags().StringVar(&opts.to, "to", "", "override the recipient address")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("message")

	return cmd
}

// localAttachments 把本地路径转换为附件，内容在上传时才读取
func localAttachments(paths []string) ([]domain.Attachment, error) {
	files := make([]domain.Attachment, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment: %w", err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("attachment %s is a directory", p)
		}
		files = append(files, domain.Attachment{
			Name:        filepath.Base(p),
			Size:        info.Size(),
			ContentType: mime.TypeByExtension(filepath.Ext(p)),
			Handle:      domain.PathHandle(p),
		})
	}
	return files, nil
}

// runSend 在会话上选择附件并提交，过程中的事件打印到 out
func runSend(ctx context.Context, s *submission.Session, form domain.FormFields, files []domain.Attachment, out io.Writer) (*domain.Outcome, error) {
	events, cancel := s.Subscribe(0)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range events {
			printEvent(out, e)
		}
	}()
	defer func() {
		cancel()
		<-done
	}()

	if len(files) > 0 {
		if _, err := s.Select(files); err != nil {
			return nil, err
		}
	}
	return s.Submit(ctx, form)
}

func printEvent(out io.Writer, e submission.Event) {
	switch e.Type {
	case submission.EventStatus:
		fmt.Fprintf(out, "status: %s\n", e.Status)
	case submission.EventProgress:
		fmt.Fprintf(out, "  upload #%d: %d%%\n", e.Progress.Index+1, e.Progress.Percent)
	case submission.EventSelection:
		if e.InlineError != "" {
			fmt.Fprintf(out, "attachments: %s\n", e.InlineError)
			return
		}
		fmt.Fprintf(out, "attachments: %d file(s), %d bytes\n", len(e.Files), domain.TotalSize(e.Files))
	case submission.EventNotification:
		fmt.Fprintf(out, "[%s] %s\n", e.Notification.Level, e.Notification.Text)
	}
}
