// Package widgets provides custom Fyne widgets for the Primal Radio player.
package widgets

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
)

// Cover shows station cover art and opens a context menu on right-click.
// The menu is used for the external player links.
type Cover struct {
	widget.BaseWidget

	image          *canvas.Image
	url            string
	onSecondaryTap func(*fyne.PointEvent)
}

// NewCover creates an empty cover showing the media icon.
func NewCover(onSecondaryTap func(*fyne.PointEvent)) *Cover {
	img := canvas.NewImageFromResource(theme.MediaMusicIcon())
	img.FillMode = canvas.ImageFillContain
	img.SetMinSize(fyne.NewSize(160, 160))

	c := &Cover{
		image:          img,
		onSecondaryTap: onSecondaryTap,
	}
	c.ExtendBaseWidget(c)
	return c
}

// CreateRenderer implements fyne.Widget.
func (c *Cover) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(c.image)
}

// SetResource shows the given image. A nil resource shows the media icon.
func (c *Cover) SetResource(res fyne.Resource) {
	if res == nil {
		res = theme.MediaMusicIcon()
	}
	c.image.Resource = res
	c.image.Image = nil
	c.image.Refresh()
}

// SetURL records the URL the shown image came from.
func (c *Cover) SetURL(url string) {
	c.url = url
}

// URL returns the URL of the shown image.
func (c *Cover) URL() string {
	return c.url
}

// Tapped implements fyne.Tappable. Primary taps do nothing.
func (c *Cover) Tapped(*fyne.PointEvent) {}

// TappedSecondary implements fyne.SecondaryTappable (right-click).
func (c *Cover) TappedSecondary(pe *fyne.PointEvent) {
	if c.onSecondaryTap != nil {
		c.onSecondaryTap(pe)
	}
}

// Ensure Cover implements the required interfaces
var _ fyne.Tappable = (*Cover)(nil)
var _ fyne.SecondaryTappable = (*Cover)(nil)
