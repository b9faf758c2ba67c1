package components

import (
	"fmt"
	"strings"

	"bleremote/internal/adapter/tui/theme"
	"bleremote/internal/domain"
)

// SliderModel draws one bounded control value as a horizontal bar.
type SliderModel struct {
	Label   string
	Range   domain.Range
	Value   int
	Focused bool
	width   int // bar cells, excluding label and number
}

// NewSlider creates a slider resting at the range default.
func NewSlider(label string, r domain.Range) SliderModel {
	return SliderModel{Label: label, Range: r, Value: r.Default, width: 40}
}

// SetWidth sets the number of bar cells.
func (m *SliderModel) SetWidth(w int) {
	m.width = theme.Clamp(w, 10, 200)
}

// Step moves the value by delta and clamps it to the range.
func (m *SliderModel) Step(delta int) int {
	m.Value = m.Range.Clamp(m.Value + delta)
	return m.Value
}

// Knob returns the bar cell holding the current value.
func (m SliderModel) Knob() int {
	span := m.Range.Max - m.Range.Min
	if span <= 0 || m.width <= 1 {
		return 0
	}
	return (m.Range.Clamp(m.Value) - m.Range.Min) * (m.width - 1) / span
}

// View renders "label [████┃░░░░] value".
func (m SliderModel) View() string {
	knob := m.Knob()
	var bar strings.Builder
	bar.WriteString(theme.SliderFilled.Render(strings.Repeat(theme.SymbolSliderFull, knob)))
	bar.WriteString(theme.SliderKnob.Render(theme.SymbolSliderKnob))
	if rest := m.width - knob - 1; rest > 0 {
		bar.WriteString(theme.SliderEmpty.Render(strings.Repeat(theme.SymbolSliderFree, rest)))
	}

	label := fmt.Sprintf("%-8s", m.Label)
	if m.Focused {
		label = theme.Selected.Render(theme.SymbolCursor + label[:len(label)-1])
	} else {
		label = theme.Bold.Render(label)
	}
	return fmt.Sprintf("%s [%s] %4d", label, bar.String(), m.Value)
}
