package domain

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
)

type TriggerFilterType string

const (
	TriggerFilterTypeEmail      TriggerFilterType = "email"
	TriggerFilterTypeMessage    TriggerFilterType = "message"
	TriggerFilterTypeExpression TriggerFilterType = "expression"
)

// TriggerFilter is a tagged union keyed by Type; exactly one variant is set.
// A nil filter matches every event.
type TriggerFilter struct {
	Type       TriggerFilterType `json:"type" bson:"type"`
	Email      *EmailFilter      `json:"email,omitempty" bson:"email,omitempty"`
	Message    *MessageFilter    `json:"message,omitempty" bson:"message,omitempty"`
	Expression *ExpressionFilter `json:"expression,omitempty" bson:"expression,omitempty"`
}

// EmailFilter matches inbound mail events on sender, subject,
// attachment presence, folder and importance.
type EmailFilter struct {
	FromContains    string `json:"from_contains,omitempty" bson:"from_contains,omitempty"`
	SubjectContains string `json:"subject_contains,omitempty" bson:"subject_contains,omitempty"`
	HasAttachment   bool   `json:"has_attachment,omitempty" bson:"has_attachment,omitempty"`
	Folder          string `json:"folder,omitempty" bson:"folder,omitempty"`
	Importance      string `json:"importance,omitempty" bson:"importance,omitempty"`
}

// MessageFilter matches chat-style events (Slack, Teams).
type MessageFilter struct {
	ChannelID    string `json:"channel_id,omitempty" bson:"channel_id,omitempty"`
	FromUser     string `json:"from_user,omitempty" bson:"from_user,omitempty"`
	TextContains string `json:"text_contains,omitempty" bson:"text_contains,omitempty"`
}

// ExpressionFilter evaluates a custom expr predicate against the raw event.
type ExpressionFilter struct {
	Expression string `json:"expression" bson:"expression"`
}

// Matches reports whether the incoming event payload satisfies the filter.
func (f *TriggerFilter) Matches(input map[string]any) (bool, error) {
	if f == nil {
		return true, nil
	}

	switch f.Type {
	case TriggerFilterTypeEmail:
		if f.Email == nil {
			return false, fmt.Errorf("email filter has no email variant")
		}

		return f.Email.Matches(input), nil
	case TriggerFilterTypeMessage:
		if f.Message == nil {
			return false, fmt.Errorf("message filter has no message variant")
		}

		return f.Message.Matches(input), nil
	case TriggerFilterTypeExpression:
		if f.Expression == nil {
			return false, fmt.Errorf("expression filter has no expression variant")
		}

		return f.Expression.Matches(input)
	default:
		return false, fmt.Errorf("unknown trigger filter type %q", f.Type)
	}
}

func (f *EmailFilter) Matches(input map[string]any) bool {
	if f.FromContains != "" && !strings.Contains(stringField(input, "from"), f.FromContains) {
		return false
	}

	if f.SubjectContains != "" && !strings.Contains(stringField(input, "subject"), f.SubjectContains) {
		return false
	}

	if f.HasAttachment && !boolField(input, "has_attachment") {
		return false
	}

	if f.Folder != "" && !strings.EqualFold(stringField(input, "folder"), f.Folder) {
		return false
	}

	if f.Importance != "" && !strings.EqualFold(stringField(input, "importance"), f.Importance) {
		return false
	}

	return true
}

func (f *MessageFilter) Matches(input map[string]any) bool {
	if f.ChannelID != "" && stringField(input, "channel_id") != f.ChannelID {
		return false
	}

	if f.FromUser != "" && stringField(input, "from_user") != f.FromUser {
		return false
	}

	if f.TextContains != "" && !strings.Contains(stringField(input, "text"), f.TextContains) {
		return false
	}

	return true
}

func (f *ExpressionFilter) Matches(input map[string]any) (bool, error) {
	program, err := expr.Compile(f.Expression, expr.Env(map[string]any{}), expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return false, fmt.Errorf("failed to compile filter expression: %w", err)
	}

	result, err := expr.Run(program, input)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate filter expression: %w", err)
	}

	matched, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("filter expression did not evaluate to a boolean")
	}

	return matched, nil
}

func stringField(input map[string]any, key string) string {
	value, ok := input[key].(string)
	if !ok {
		return ""
	}

	return value
}

func boolField(input map[string]any, key string) bool {
	value, ok := input[key].(bool)
	if !ok {
		return false
	}

	return value
}
