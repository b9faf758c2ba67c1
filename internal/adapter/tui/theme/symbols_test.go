package theme

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"bleremote/internal/domain"
)

func TestInitSymbolsASCIIOverride(t *testing.T) {
	t.Setenv("BLEREMOTE_ASCII_SYMBOLS", "1")
	InitSymbols()
	t.Cleanup(func() {
		t.Setenv("BLEREMOTE_ASCII_SYMBOLS", "")
		InitSymbols()
	})

	assert.Equal(t, "[OK]", SymbolSuccess)
	assert.Equal(t, "=", SymbolSliderFull)
	assert.Equal(t, ">", SymbolCursor)
}

func TestDetectUnicodeFromLocale(t *testing.T) {
	t.Setenv("BLEREMOTE_ASCII_SYMBOLS", "")
	t.Setenv("LC_ALL", "en_US.UTF-8")
	assert.True(t, DetectUnicodeSupport())

	t.Setenv("BLEREMOTE_ASCII_SYMBOLS", "true")
	assert.False(t, DetectUnicodeSupport())
}

func TestClampAndStateStyle(t *testing.T) {
	assert.Equal(t, 0, Clamp(-5, 0, 10))
	assert.Equal(t, 10, Clamp(50, 0, 10))
	assert.Equal(t, 7, Clamp(7, 0, 10))

	assert.Equal(t, TextSuccess.GetForeground(), StateStyle(domain.StateConnected).GetForeground())
	assert.Equal(t, TextMuted.GetForeground(), StateStyle(domain.StateDisconnected).GetForeground())
}
