package fyne

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	fyneapp "fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/primalradio/primalradio/internal/adapter/ui/fyne/widgets"
	"github.com/primalradio/primalradio/internal/domain"
	"github.com/primalradio/primalradio/internal/ports"
)

// Window defaults.
const (
	APPNAME = "Primal Radio"
	WIDTH   = 420
	HEIGHT  = 360

	marqueeWidth = 40
	marqueeStep  = 300 * time.Millisecond
)

// MainWindow is the main UI window implementing ports.PlayerView.
// It handles all UI rendering and user interactions.
//
// The MainWindow follows the MVP pattern:
// - It's a "dumb view" that just displays data
// - All business logic is in the Presenter
// - User interactions are forwarded to the Presenter
//
// View methods may be called from any goroutine; they hop onto the UI thread.
type MainWindow struct {
	app     fyneapp.App
	window  fyneapp.Window
	logger  *slog.Logger
	version string

	// UI components
	stationSelect *widget.Select
	cover         *widgets.Cover
	playButton    *widget.Button
	muteButton    *widget.Button
	volumeSlider  *widget.Slider
	showLabel     *widget.Label
	hostLabel     *widget.Label
	trackLabel    *widget.Label
	statsLabel    *widget.Label
	statusLabel   *widget.Label
	linksBox      *fyneapp.Container

	// State, touched on the UI thread only
	stationIDs    map[string]string // display name -> station ID
	links         *domain.PlaylistLinks
	syncingSelect bool
	syncingVolume bool

	// Marquee state shared with the scroll goroutine
	marquee   *widgets.Marquee
	marqueeMu sync.Mutex

	// URL of the cover being shown or loaded
	coverURL string
	coverMu  sync.Mutex

	// Lifecycle management
	stopScroll    chan struct{}
	scrollWG      sync.WaitGroup
	closeOnce     sync.Once
	onBeforeClose func()

	// Presenter (set after construction)
	presenter *Presenter
}

// NewMainWindow creates a new main window.
func NewMainWindow(app fyneapp.App, logger *slog.Logger, version string) *MainWindow {
	w := &MainWindow{
		app:        app,
		logger:     logger,
		version:    version,
		stationIDs: make(map[string]string),
		marquee:    widgets.NewMarquee("", marqueeWidth),
		stopScroll: make(chan struct{}),
	}

	// Create a window
	w.window = app.NewWindow(APPNAME)

	// Build UI
	w.buildUI()

	// Set window properties
	w.window.Resize(fyneapp.Size{
		Width:  WIDTH,
		Height: HEIGHT,
	})
	w.window.SetFixedSize(true)
	w.window.SetCloseIntercept(func() {
		if w.onBeforeClose != nil {
			w.onBeforeClose()
		}
		w.Close()
	})

	return w
}

// SetPresenter connects the presenter to this view.
// This must be called before showing the window.
func (w *MainWindow) SetPresenter(presenter *Presenter) {
	w.presenter = presenter
	w.wirePresenterHandlers()
	w.addShortcuts()
}

// SetOnBeforeClose registers a callback run before the window closes.
func (w *MainWindow) SetOnBeforeClose(fn func()) {
	w.onBeforeClose = fn
}

// buildUI constructs the UI components.
func (w *MainWindow) buildUI() {
	w.stationSelect = widget.NewSelect(nil, nil)
	w.stationSelect.PlaceHolder = "Select a station"

	w.cover = widgets.NewCover(w.showLinksMenu)

	// Control buttons
	w.playButton = widget.NewButtonWithIcon("", theme.MediaPlayIcon(), nil)
	w.muteButton = widget.NewButtonWithIcon("", theme.VolumeUpIcon(), nil)

	// Volume slider
	w.volumeSlider = widget.NewSlider(0, 100)
	w.volumeSlider.Orientation = widget.Horizontal

	// Now playing labels
	w.showLabel = widget.NewLabel("")
	w.showLabel.TextStyle = fyneapp.TextStyle{Bold: true}
	w.showLabel.Truncation = fyneapp.TextTruncateEllipsis
	w.hostLabel = widget.NewLabel("")
	w.hostLabel.Truncation = fyneapp.TextTruncateEllipsis
	w.trackLabel = widget.NewLabel("")
	w.trackLabel.TextStyle = fyneapp.TextStyle{Italic: true}
	w.trackLabel.Truncation = fyneapp.TextTruncateClip
	w.statsLabel = widget.NewLabel("")
	w.statusLabel = widget.NewLabel("")
	w.linksBox = container.NewHBox()

	info := container.NewVBox(w.showLabel, w.hostLabel, w.trackLabel, w.statsLabel)
	body := container.NewBorder(nil, nil, w.cover, nil, info)

	buttons := container.NewHBox(w.playButton, w.muteButton)
	controls := container.NewBorder(nil, nil, buttons, nil, w.volumeSlider)
	footer := container.NewVBox(controls, container.NewBorder(nil, nil, w.statusLabel, w.linksBox))

	w.window.SetContent(container.NewPadded(container.NewBorder(w.stationSelect, footer, nil, nil, body)))

	// Menu
	w.window.SetMainMenu(fyneapp.NewMainMenu(w.createMenu()...))
}

// wirePresenterHandlers connects UI events to presenter handlers.
func (w *MainWindow) wirePresenterHandlers() {
	if w.presenter == nil {
		return
	}

	w.stationSelect.OnChanged = func(name string) {
		if w.syncingSelect {
			return
		}
		if id, ok := w.stationIDs[name]; ok {
			w.presenter.OnStationSelected(id)
		}
	}

	w.playButton.OnTapped = func() {
		w.presenter.OnPlayClicked()
	}

	w.muteButton.OnTapped = func() {
		w.presenter.OnMuteClicked()
	}

	w.volumeSlider.OnChanged = func(value float64) {
		if w.syncingVolume {
			return
		}
		w.presenter.OnVolumeChanged(value)
	}
}

// createMenu creates the application menu.
func (w *MainWindow) createMenu() []*fyneapp.Menu {
	rotationFolder := fyneapp.NewMenuItem("Choose Rotation Folder...", func() {
		w.handleOpenRotationFolder()
	})

	exitMenu := fyneapp.NewMenuItem("Exit", func() {
		if w.onBeforeClose != nil {
			w.onBeforeClose()
		}
		w.Close()
	})

	about := fyneapp.NewMenuItem("About", func() {
		showAbout(w.window, w.version)
	})

	return []*fyneapp.Menu{
		fyneapp.NewMenu("File", rotationFolder, fyneapp.NewMenuItemSeparator(), exitMenu),
		fyneapp.NewMenu("Help", about),
	}
}

// handleOpenRotationFolder handles the "Choose Rotation Folder" menu action.
func (w *MainWindow) handleOpenRotationFolder() {
	if w.presenter == nil {
		return
	}

	dialog := NewFolderDialog(w.window, func(folderPath string) {
		// Scanning reads every file, keep it off the UI thread
		go func() {
			if err := w.presenter.OnRotationFolderOpened(folderPath); err != nil {
				w.ShowNotification("Error", fmt.Sprintf("Failed to scan folder: %v", err))
			}
		}()
	}, w.logger)
	dialog.Show()
}

// showLinksMenu pops up the external player links at the cursor.
func (w *MainWindow) showLinksMenu(pe *fyneapp.PointEvent) {
	items := w.linkItems()
	if len(items) == 0 {
		return
	}
	widget.ShowPopUpMenuAtPosition(fyneapp.NewMenu("", items...), w.window.Canvas(), pe.AbsolutePosition)
}

func (w *MainWindow) linkItems() []*fyneapp.MenuItem {
	if w.links == nil {
		return nil
	}

	var items []*fyneapp.MenuItem
	for _, l := range []struct{ name, target string }{
		{"Open in Winamp", w.links.Winamp},
		{"Open in VLC", w.links.VLC},
		{"Open in iTunes", w.links.ITunes},
	} {
		u, err := url.Parse(l.target)
		if l.target == "" || err != nil {
			continue
		}
		items = append(items, fyneapp.NewMenuItem(l.name, func() {
			if err := w.app.OpenURL(u); err != nil {
				w.logger.Warn("failed to open playlist link", slog.Any("error", err))
			}
		}))
	}
	return items
}

// addShortcuts adds keyboard shortcuts.
func (w *MainWindow) addShortcuts() {
	w.window.Canvas().AddShortcut(&desktop.CustomShortcut{
		KeyName:  fyneapp.KeyUp,
		Modifier: fyneapp.KeyModifierAlt,
	}, func(fyneapp.Shortcut) {
		w.volumeSlider.SetValue(min(w.volumeSlider.Value+5, 100))
	})

	w.window.Canvas().AddShortcut(&desktop.CustomShortcut{
		KeyName:  fyneapp.KeyDown,
		Modifier: fyneapp.KeyModifierAlt,
	}, func(fyneapp.Shortcut) {
		w.volumeSlider.SetValue(max(w.volumeSlider.Value-5, 0))
	})

	w.window.Canvas().AddShortcut(&desktop.CustomShortcut{
		KeyName:  fyneapp.KeySpace,
		Modifier: fyneapp.KeyModifierAlt,
	}, func(fyneapp.Shortcut) {
		w.presenter.OnPlayClicked()
	})
}

// startScrollInfoRoutine scrolls the track line. Label updates hop onto the UI
// thread through fyne.Do.
func (w *MainWindow) startScrollInfoRoutine() {
	w.scrollWG.Add(1)
	go func() {
		defer w.scrollWG.Done()

		ticker := time.NewTicker(marqueeStep)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				w.marqueeMu.Lock()
				scrolls := w.marquee.Scrolls()
				text := w.marquee.Step()
				w.marqueeMu.Unlock()
				if scrolls {
					fyneapp.Do(func() { w.trackLabel.SetText(text) })
				}
			case <-w.stopScroll:
				return
			}
		}
	}()
}

// ShowAndRun shows the window and runs the application.
// This also starts the track line scrolling.
func (w *MainWindow) ShowAndRun() {
	w.startScrollInfoRoutine()
	w.window.ShowAndRun()
}

// Close closes the window and stops the scrolling.
// It's safe to call multiple times (idempotent).
func (w *MainWindow) Close() {
	w.closeOnce.Do(func() {
		close(w.stopScroll)
		w.scrollWG.Wait()
		w.window.Close()
	})
}

// GetWindow returns the underlying Fyne window.
func (w *MainWindow) GetWindow() fyneapp.Window {
	return w.window
}

// PlayerView interface implementation

// SetStations fills the station selector.
func (w *MainWindow) SetStations(stations []domain.Station, selectedID string) {
	fyneapp.Do(func() {
		names := make([]string, 0, len(stations))
		selected := ""
		clear(w.stationIDs)
		for _, st := range stations {
			name := st.Name
			if st.IsLive {
				name += " (Live)"
			}
			names = append(names, name)
			w.stationIDs[name] = st.ID
			if st.ID == selectedID {
				selected = name
			}
		}

		w.syncingSelect = true
		w.stationSelect.SetOptions(names)
		if selected != "" {
			w.stationSelect.SetSelected(selected)
		}
		w.syncingSelect = false
	})
}

// SetStation shows the selected station and its playlist links.
func (w *MainWindow) SetStation(station domain.Station, links *domain.PlaylistLinks) {
	fyneapp.Do(func() {
		w.links = links
		w.window.SetTitle(fmt.Sprintf("%s - %s", APPNAME, station.Name))

		for name, id := range w.stationIDs {
			if id == station.ID && w.stationSelect.Selected != name {
				w.syncingSelect = true
				w.stationSelect.SetSelected(name)
				w.syncingSelect = false
			}
		}

		w.linksBox.RemoveAll()
		for _, item := range w.linkItems() {
			label := strings.TrimPrefix(item.Label, "Open in ")
			w.linksBox.Add(widget.NewButton(label, item.Action))
		}
		w.linksBox.Refresh()

		w.setTrackText(station.CurrentTrack)
	})
}

// SetNowPlaying shows the latest metadata record.
func (w *MainWindow) SetNowPlaying(metadata domain.StationMetadata) {
	fyneapp.Do(func() {
		w.showLabel.SetText(metadata.Show.Name)
		w.hostLabel.SetText(metadata.Track.Artist)
		w.setTrackText(metadata.Track.Title)
		w.statsLabel.SetText(statsLine(metadata))
	})
	w.loadCover(metadata.Track.AlbumArtURL)
}

// statsLine renders listeners, bitrate and format.
func statsLine(metadata domain.StationMetadata) string {
	var parts []string
	if metadata.Listeners > 0 {
		parts = append(parts, fmt.Sprintf("%d listeners", metadata.Listeners))
	}
	if metadata.Bitrate != "" {
		parts = append(parts, metadata.Bitrate)
	}
	if metadata.Format != "" {
		parts = append(parts, metadata.Format)
	}
	return strings.Join(parts, " | ")
}

func (w *MainWindow) setTrackText(text string) {
	w.marqueeMu.Lock()
	w.marquee.SetText(text)
	frame := w.marquee.Frame()
	w.marqueeMu.Unlock()
	w.trackLabel.SetText(frame)
}

// loadCover fetches cover art in the background. Unchanged URLs are skipped.
func (w *MainWindow) loadCover(coverURL string) {
	w.coverMu.Lock()
	if coverURL == w.coverURL {
		w.coverMu.Unlock()
		return
	}
	w.coverURL = coverURL
	w.coverMu.Unlock()

	if coverURL == "" {
		fyneapp.Do(func() { w.cover.SetResource(nil) })
		return
	}

	go func() {
		res, err := fyneapp.LoadResourceFromURLString(coverURL)
		if err != nil {
			w.logger.Debug("cover art unavailable", slog.String("url", coverURL), slog.Any("error", err))
			res = nil
		}

		w.coverMu.Lock()
		current := w.coverURL == coverURL
		w.coverMu.Unlock()
		if !current {
			return
		}
		fyneapp.Do(func() {
			w.cover.SetURL(coverURL)
			w.cover.SetResource(res)
		})
	}()
}

// SetPlayState updates the play/pause button state.
func (w *MainWindow) SetPlayState(playing bool) {
	fyneapp.Do(func() {
		if playing {
			w.playButton.SetIcon(theme.MediaPauseIcon())
		} else {
			w.playButton.SetIcon(theme.MediaPlayIcon())
		}
	})
}

// SetStatus shows a short status line.
func (w *MainWindow) SetStatus(status string) {
	fyneapp.Do(func() {
		w.statusLabel.SetText(status)
	})
}

// SetVolume updates the volume slider without echoing the change back.
func (w *MainWindow) SetVolume(volume int) {
	fyneapp.Do(func() {
		w.syncingVolume = true
		w.volumeSlider.SetValue(float64(volume))
		w.syncingVolume = false
	})
}

// SetMuteState updates the mute button state.
func (w *MainWindow) SetMuteState(muted bool) {
	fyneapp.Do(func() {
		if muted {
			w.muteButton.SetIcon(theme.VolumeMuteIcon())
		} else {
			w.muteButton.SetIcon(theme.VolumeUpIcon())
		}
	})
}

// ShowNotification displays a system notification.
func (w *MainWindow) ShowNotification(title, message string) {
	w.app.SendNotification(fyneapp.NewNotification(title, message))
}

// Verify PlayerView implementation
var _ ports.PlayerView = (*MainWindow)(nil)
