package kingo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTerms(t *testing.T) {
	t.Parallel()

	terms := ParseTerms(`<html><body>
<select name="Sel_XNXQ">
<option value="20251">2025-2026学年第一学期</option>
<option value="20242">2024-2025学年第二学期</option>
<option value="">请选择</option>
</select>
</body></html>`)
	require.Equal(t, map[string]string{
		"20251": "2025-2026学年第一学期",
		"20242": "2024-2025学年第二学期",
	}, terms)
}

func TestParseTerms_NoSelectorYieldsEmpty(t *testing.T) {
	t.Parallel()

	require.Empty(t, ParseTerms("<html><body>maintenance</body></html>"))
}
