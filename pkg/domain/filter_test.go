package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerFilter_NilMatchesEverything(t *testing.T) {
	var filter *TriggerFilter

	matched, err := filter.Matches(map[string]any{"anything": true})
	require.NoError(t, err)
	assert.True(t, matched)
}

func TestEmailFilter_Matches(t *testing.T) {
	tests := []struct {
		name    string
		filter  EmailFilter
		input   map[string]any
		matched bool
	}{
		{
			name:    "from substring match",
			filter:  EmailFilter{FromContains: "@acme.com"},
			input:   map[string]any{"from": "billing@acme.com"},
			matched: true,
		},
		{
			name:    "from substring mismatch",
			filter:  EmailFilter{FromContains: "@acme.com"},
			input:   map[string]any{"from": "spam@other.io"},
			matched: false,
		},
		{
			name:    "subject and attachment",
			filter:  EmailFilter{SubjectContains: "invoice", HasAttachment: true},
			input:   map[string]any{"subject": "Your invoice for March", "has_attachment": true},
			matched: true,
		},
		{
			name:    "attachment required but absent",
			filter:  EmailFilter{HasAttachment: true},
			input:   map[string]any{"subject": "no files here"},
			matched: false,
		},
		{
			name:    "folder is case insensitive",
			filter:  EmailFilter{Folder: "Inbox"},
			input:   map[string]any{"folder": "INBOX"},
			matched: true,
		},
		{
			name:    "importance mismatch",
			filter:  EmailFilter{Importance: "high"},
			input:   map[string]any{"importance": "low"},
			matched: false,
		},
		{
			name:    "empty filter matches",
			filter:  EmailFilter{},
			input:   map[string]any{},
			matched: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter := &TriggerFilter{Type: TriggerFilterTypeEmail, Email: &tt.filter}

			matched, err := filter.Matches(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.matched, matched)
		})
	}
}

func TestMessageFilter_Matches(t *testing.T) {
	filter := &TriggerFilter{
		Type: TriggerFilterTypeMessage,
		Message: &MessageFilter{
			ChannelID:    "C042",
			TextContains: "deploy",
		},
	}

	matched, err := filter.Matches(map[string]any{
		"channel_id": "C042",
		"text":       "please deploy the release",
	})
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = filter.Matches(map[string]any{
		"channel_id": "C999",
		"text":       "please deploy the release",
	})
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestExpressionFilter_Matches(t *testing.T) {
	filter := &TriggerFilter{
		Type: TriggerFilterTypeExpression,
		Expression: &ExpressionFilter{
			Expression: `amount > 100 && currency == "usd"`,
		},
	}

	matched, err := filter.Matches(map[string]any{"amount": 250, "currency": "usd"})
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = filter.Matches(map[string]any{"amount": 50, "currency": "usd"})
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestExpressionFilter_CompileError(t *testing.T) {
	filter := &TriggerFilter{
		Type: TriggerFilterTypeExpression,
		Expression: &ExpressionFilter{
			Expression: `amount >`,
		},
	}

	_, err := filter.Matches(map[string]any{"amount": 1})
	assert.Error(t, err)
}

func TestTriggerFilter_UnknownType(t *testing.T) {
	filter := &TriggerFilter{Type: "bogus"}

	_, err := filter.Matches(map[string]any{})
	assert.Error(t, err)
}

func TestTriggerFilter_MissingVariant(t *testing.T) {
	filter := &TriggerFilter{Type: TriggerFilterTypeEmail}

	_, err := filter.Matches(map[string]any{})
	assert.Error(t, err)
}
