package domain

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

// 验证相关的错误定义
var (
	ErrInvalidEmail     = errors.New("invalid email format")
	ErrEmailTooLong     = errors.New("email address too long")
	ErrLocalPartTooLong = errors.New("local part too long (max 64 chars)")
	ErrDomainTooLong    = errors.New("domain too long (max 253 chars)")
	ErrInvalidDomain    = errors.New("invalid domain format")
)

// 验证常量
const (
	// RFC 5322 邮箱地址长度限制
	MaxEmailLength     = 254
	MaxLocalPartLength = 64
	MaxDomainLength    = 253

	// 表单字段长度限制（字符数）
	MaxNameLength    = 100
	MaxMessageLength = 20000
)

// 域名验证（支持子域名，至少包含一个点）
var domainRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+$`)

// EmailValidator 邮箱验证器
type EmailValidator struct{}

// NewEmailValidator 创建邮箱验证器
func NewEmailValidator() *EmailValidator {
	return &EmailValidator{}
}

// ValidateEmail 完整验证邮箱地址
func (v *EmailValidator) ValidateEmail(email string) error {
	email = strings.TrimSpace(email)

	if len(email) > MaxEmailLength {
		return ErrEmailTooLong
	}

	// 使用标准库进行基础格式验证，不接受 "Name <addr>" 形式
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}

	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return ErrInvalidEmail
	}

	if at > MaxLocalPartLength {
		return ErrLocalPartTooLong
	}

	return v.ValidateDomain(email[at+1:])
}

// ValidateDomain 验证域名
func (v *EmailValidator) ValidateDomain(domain string) error {
	if domain == "" {
		return ErrInvalidDomain
	}

	if len(domain) > MaxDomainLength {
		return ErrDomainTooLong
	}

	if !domainRegex.MatchString(domain) {
		return ErrInvalidDomain
	}

	return nil
}

// ValidateForm 校验联系表单，返回包装了 ErrInvalidForm 的错误
func ValidateForm(form FormFields) error {
	name := strings.TrimSpace(form.Name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidForm)
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return fmt.Errorf("%w: name is too long (max %d chars)", ErrInvalidForm, MaxNameLength)
	}

	if strings.TrimSpace(form.Email) == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidForm)
	}
	if err := NewEmailValidator().ValidateEmail(form.Email); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidForm, err)
	}

	if strings.TrimSpace(form.Message) == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidForm)
	}
	if utf8.RuneCountInString(form.Message) > MaxMessageLength {
		return fmt.Errorf("%w: message is too long (max %d chars)", ErrInvalidForm, MaxMessageLength)
	}

	return nil
}

// Normalize 去除表单字段首尾空白
func (f FormFields) Normalize() FormFields {
	return FormFields{
		Name:    strings.TrimSpace(f.Name),
		Email:   strings.TrimSpace(f.Email),
		Message: strings.TrimSpace(f.Message),
	}
}
