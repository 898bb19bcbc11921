package domain

import (
	"time"
	"unicode/utf8"
)

// ============================================================
// Message templates
// ============================================================

type TemplateType string

const (
	TemplateEmail TemplateType = "email"
	TemplateSMS   TemplateType = "sms"
)

// MaxSMSLength is the content limit of an SMS template, in characters.
const MaxSMSLength = 160

// CopySuffix is appended to the name of a duplicated template.
const CopySuffix = " (Copy)"

// Template is a reusable reminder message.
type Template struct {
	ID        string       `json:"id"`
	Type      TemplateType `json:"type"`
	Name      string       `json:"name"`
	Subject   string       `json:"subject,omitempty"`
	Content   string       `json:"content"`
	Variables []string     `json:"variables,omitempty"`
	Usage     int          `json:"usage"`
	LastUsed  *time.Time   `json:"lastUsed,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

func (t Template) EntityID() string   { return t.ID }
func (t Template) Created() time.Time { return t.CreatedAt }

type TemplateInput struct {
	Type      TemplateType `json:"type"`
	Name      string       `json:"name"`
	Subject   string       `json:"subject,omitempty"`
	Content   string       `json:"content"`
	Variables []string     `json:"variables,omitempty"`
}

type TemplatePatch struct {
	Type      *TemplateType `json:"type,omitempty"`
	Name      *string       `json:"name,omitempty"`
	Subject   *string       `json:"subject,omitempty"`
	Content   *string       `json:"content,omitempty"`
	Variables *[]string     `json:"variables,omitempty"`
	Usage     *int          `json:"usage,omitempty"`
	LastUsed  *time.Time    `json:"lastUsed,omitempty"`
}

func (in TemplateInput) Validate() error {
	if in.Name == "" {
		return &ErrValidation{Field: "name", Message: "is required"}
	}
	switch in.Type {
	case TemplateEmail:
		if in.Subject == "" {
			return &ErrValidation{Field: "subject", Message: "is required for email templates"}
		}
	case TemplateSMS:
		if utf8.RuneCountInString(in.Content) > MaxSMSLength {
			return &ErrValidation{Field: "content", Message: "SMS content must be 160 characters or less"}
		}
	default:
		return &ErrValidation{Field: "type", Message: "must be email or sms"}
	}
	return nil
}

func (in TemplateInput) Entity(id string, now time.Time) Template {
	return Template{
		ID:        id,
		Type:      in.Type,
		Name:      in.Name,
		Subject:   in.Subject,
		Content:   in.Content,
		Variables: append([]string(nil), in.Variables...),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Copy returns the input that recreates t as a fresh duplicate.
func (t Template) Copy() TemplateInput {
	in := t.Input()
	in.Name += CopySuffix
	return in
}

// Input returns the user-editable fields of t.
func (t Template) Input() TemplateInput {
	return TemplateInput{
		Type:      t.Type,
		Name:      t.Name,
		Subject:   t.Subject,
		Content:   t.Content,
		Variables: append([]string(nil), t.Variables...),
	}
}

// ValidateOn checks the template that results from applying p to t.
func (p TemplatePatch) ValidateOn(t Template) error {
	return p.Apply(t).Input().Validate()
}

func (p TemplatePatch) Apply(t Template) Template {
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Subject != nil {
		t.Subject = *p.Subject
	}
	if p.Content != nil {
		t.Content = *p.Content
	}
	if p.Variables != nil {
		t.Variables = append([]string(nil), (*p.Variables)...)
	}
	if p.Usage != nil {
		t.Usage = *p.Usage
	}
	if p.LastUsed != nil {
		lu := *p.LastUsed
		t.LastUsed = &lu
	}
	return t
}
