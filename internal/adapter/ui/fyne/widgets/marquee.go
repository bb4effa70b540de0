package widgets

import "unicode/utf8"

// marqueeGap separates the end of the text from its start while scrolling.
const marqueeGap = "    "

// Marquee scrolls a line of text one rune per step inside a fixed width.
// Text that fits is returned unchanged.
type Marquee struct {
	text  []rune
	width int
	pos   int
}

// NewMarquee creates a marquee for text shown in width runes.
func NewMarquee(text string, width int) *Marquee {
	m := &Marquee{width: width}
	m.SetText(text)
	return m
}

// SetText replaces the text and restarts scrolling.
func (m *Marquee) SetText(text string) {
	m.pos = 0
	if utf8.RuneCountInString(text) <= m.width {
		m.text = []rune(text)
		return
	}
	m.text = []rune(text + marqueeGap)
}

// Scrolls returns true if the text is wider than the marquee.
func (m *Marquee) Scrolls() bool {
	return len(m.text) > m.width
}

// Frame returns the visible window without advancing.
func (m *Marquee) Frame() string {
	if !m.Scrolls() {
		return string(m.text)
	}
	out := make([]rune, m.width)
	for i := range out {
		out[i] = m.text[(m.pos+i)%len(m.text)]
	}
	return string(out)
}

// Step advances one rune and returns the new window.
func (m *Marquee) Step() string {
	if m.Scrolls() {
		m.pos = (m.pos + 1) % len(m.text)
	}
	return m.Frame()
}
