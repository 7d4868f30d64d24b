package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageHelpers(t *testing.T) {
	assert.Contains(t, FormatSuccess("saved"), "✓ saved")
	assert.Contains(t, FormatWarning("careful"), "! careful")
	assert.Contains(t, FormatInfo("note"), "· note")
	assert.Contains(t, FormatTitle("Challenges"), "Challenges")
}

func TestFormatAmount(t *testing.T) {
	assert.Contains(t, FormatAmount(12.5, "GBP"), "+12.50 GBP")
	assert.Contains(t, FormatAmount(-3, "EUR"), "-3.00 EUR")
}

func TestRenderBox(t *testing.T) {
	out := RenderBox("Synced", "3 transactions")
	assert.Contains(t, out, "Synced")
	assert.Contains(t, out, "3 transactions")
	assert.Contains(t, out, "╭")
}
