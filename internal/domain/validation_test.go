package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmailValidator_ValidateEmail(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		expected error
	}{
		{"Valid email", "test@example.com", nil},
		{"Valid email with subdomain", "user@mail.example.com", nil},
		{"Valid short local part", "a@example.com", nil},
		{"Valid email with plus", "user+tag@example.com", nil},
		{"Invalid email - no @", "testexample.com", ErrInvalidEmail},
		{"Invalid email - no domain", "test@", ErrInvalidEmail},
		{"Invalid email - no local part", "@example.com", ErrInvalidEmail},
		{"Invalid email - display name", "Ann <ann@example.com>", ErrInvalidEmail},
		{"Invalid email - spaces", "test @example.com", ErrInvalidEmail},
		{"Invalid domain - no dot", "test@localhost", ErrInvalidDomain},
		{"Invalid - local part too long", strings.Repeat("a", 65) + "@example.com", ErrLocalPartTooLong},
		{"Invalid - too long", strings.Repeat("a", 60) + "@" + strings.Repeat("b", 200) + ".com", ErrEmailTooLong},
	}

	v := NewEmailValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateEmail(tt.email)
			if tt.expected == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestValidateForm(t *testing.T) {
	valid := FormFields{Name: "Ann", Email: "ann@example.com", Message: "I love the blue series."}

	t.Run("合法表单", func(t *testing.T) {
		assert.NoError(t, ValidateForm(valid))
	})

	tests := []struct {
		name   string
		mutate func(f *FormFields)
		want   string
	}{
		{"缺少姓名", func(f *FormFields) { f.Name = "  " }, "name is required"},
		{"姓名过长", func(f *FormFields) { f.Name = strings.Repeat("名", MaxNameLength+1) }, "name is too long"},
		{"缺少邮箱", func(f *FormFields) { f.Email = "" }, "email is required"},
		{"邮箱格式错误", func(f *FormFields) { f.Email = "ann-at-example" }, "invalid email format"},
		{"缺少留言", func(f *FormFields) { f.Message = "\n" }, "message is required"},
		{"留言过长", func(f *FormFields) { f.Message = strings.Repeat("x", MaxMessageLength+1) }, "message is too long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := valid
			tt.mutate(&form)

			err := ValidateForm(form)

			assert.ErrorIs(t, err, ErrInvalidForm)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFormFields_Normalize(t *testing.T) {
	f := FormFields{Name: " Ann ", Email: " ann@example.com", Message: "hi \n"}.Normalize()

	assert.Equal(t, FormFields{Name: "Ann", Email: "ann@example.com", Message: "hi"}, f)
	assert.False(t, f.IsZero())
	assert.True(t, FormFields{}.IsZero())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"配置缺失", errors.Join(ErrConfigurationMissing, errors.New("mail")), ErrConfigurationMissing},
		{"被拒绝", NewRejected(400, "bad template"), ErrRejected},
		{"传输失败", NewTransportFailure("timeout"), ErrTransportFailure},
		{"未知错误", errors.New("boom"), ErrTransportFailure},
		{"收件人为空", ErrRecipientEmpty, ErrRecipientEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "Total attachments size exceeds 10 MB", UserMessage(ErrSizeExceeded))
	assert.Equal(t, "Sending failed: quota exceeded", UserMessage(NewRejected(429, "quota exceeded")))
	assert.Contains(t, UserMessage(ErrRecipientEmpty), "default recipient")
	assert.Contains(t, UserMessage(ErrPayloadTooLarge), "shorten the text")
}

func TestDispatchError(t *testing.T) {
	err := NewRejected(422, "The recipients address is empty")

	var de *DispatchError
	assert.True(t, errors.As(err, &de))
	assert.Equal(t, 422, de.Status)
	assert.Equal(t, "rejected by provider: The recipients address is empty", err.Error())
	assert.True(t, errors.Is(err, ErrRejected))
	assert.False(t, errors.Is(err, ErrTransportFailure))
}

func TestSessionStatus_Busy(t *testing.T) {
	assert.True(t, StatusUploading.Busy())
	assert.True(t, StatusSending.Busy())
	assert.False(t, StatusIdle.Busy())
	assert.False(t, StatusFailed.Busy())
	assert.False(t, StatusSucceeded.Busy())
}

func TestTotalSize(t *testing.T) {
	files := []Attachment{{Size: 3}, {Size: 4}}
	assert.Equal(t, int64(7), TotalSize(files))
	assert.Equal(t, int64(0), TotalSize(nil))
}
