package theme

import (
	"os"
	"strings"
)

// SymbolSet holds all UI symbols, allowing runtime switching between
// Unicode and ASCII fallback sets.
type SymbolSet struct {
	Success    string
	Error      string
	Warning    string
	Info       string
	ArrowR     string
	Bullet     string
	Ellipsis   string
	Cursor     string
	SliderFull string
	SliderFree string
	SliderKnob string
}

var unicodeSymbols = SymbolSet{
	Success:    "\u2713", // ✓
	Error:      "\u2717", // ✗
	Warning:    "\u26A0", // ⚠
	Info:       "\u25CF", // ●
	ArrowR:     "\u2192", // →
	Bullet:     "\u2022", // •
	Ellipsis:   "\u2026", // …
	Cursor:     "\u25B8", // ▸
	SliderFull: "\u2588", // █
	SliderFree: "\u2591", // ░
	SliderKnob: "\u2503", // ┃
}

var asciiSymbols = SymbolSet{
	Success:    "[OK]",
	Error:      "[ERR]",
	Warning:    "[!]",
	Info:       "[i]",
	ArrowR:     "->",
	Bullet:     "*",
	Ellipsis:   "...",
	Cursor:     ">",
	SliderFull: "=",
	SliderFree: "-",
	SliderKnob: "|",
}

// DetectUnicodeSupport checks whether the terminal likely supports Unicode.
// BLEREMOTE_ASCII_SYMBOLS wins over locale detection.
func DetectUnicodeSupport() bool {
	if v := os.Getenv("BLEREMOTE_ASCII_SYMBOLS"); v == "1" || strings.EqualFold(v, "true") {
		return false
	}

	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		val := strings.ToLower(os.Getenv(key))
		if strings.Contains(val, "utf-8") || strings.Contains(val, "utf8") {
			return true
		}
	}

	// Most modern terminals support Unicode; default to true.
	return true
}

// InitSymbols sets the package-level Symbol* variables based on terminal
// capabilities. Called by init(), and again by tests that change the env.
func InitSymbols() {
	set := unicodeSymbols
	if !DetectUnicodeSupport() {
		set = asciiSymbols
	}

	SymbolSuccess = set.Success
	SymbolError = set.Error
	SymbolWarning = set.Warning
	SymbolInfo = set.Info
	SymbolArrowR = set.ArrowR
	SymbolBullet = set.Bullet
	SymbolEllipsis = set.Ellipsis
	SymbolCursor = set.Cursor
	SymbolSliderFull = set.SliderFull
	SymbolSliderFree = set.SliderFree
	SymbolSliderKnob = set.SliderKnob
}

func init() {
	InitSymbols()
}
