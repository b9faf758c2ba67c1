package panel

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

const helpMarkdown = `# BLE Remote

## Connecting

- **s** scans for nearby devices
- **enter** on a device connects and discovers its services
- **x** disconnects

The first writable characteristic found becomes the write target. Expand a
service with **enter** and pick another characteristic to change it.

## Driving

| Key | Action |
| --- | --- |
| left / right | step the focused slider by 1 |
| H / L | step by 10 |
| e | type a value, enter applies it |
| c | center the focused slider |
| space | stop: center both sliders and send |
| enter | send the current payload now |

Slider changes are sent after a short pause. Out-of-range text is rejected
and the last valid value is kept.

## Panel

- **tab / shift+tab** move between sections
- **a** shows or hides the activity log
- **?** shows this sheet, **esc** closes it
- **q** quits
`

// renderHelp renders the help sheet, falling back to the raw markdown
// when the renderer cannot be built.
func renderHelp(width int) string {
	if width < 20 {
		width = 74
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return helpMarkdown
	}
	out, err := r.Render(helpMarkdown)
	if err != nil {
		return helpMarkdown
	}
	return strings.TrimRight(out, "\n")
}
