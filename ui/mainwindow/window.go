// Package mainwindow provides the main application window: toolbar, the
// annotation canvas, and the dialogs around it.
package mainwindow

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"

	"media-markup/internal/annotation"
	"media-markup/internal/assets"
	"media-markup/internal/ink"
	"media-markup/internal/media"
	"media-markup/internal/overlay"
	"media-markup/internal/search"
	"media-markup/internal/session"
	"media-markup/pkg/geometry"
	"media-markup/ui/canvas"
	"media-markup/ui/prefs"
)

// palette is the fixed set of annotation colors offered by the toolbar.
var palette = []string{"#eb3b30", "#1c8f49", "#2f6fde", "#f5a623", "#9b30d9"}

const searchTimeout = 10 * time.Second

// MainWindow is the primary application window.
type MainWindow struct {
	fyne.Window
	app fyne.App

	session *session.Session
	store   annotation.Store
	creator *annotation.Creator
	editor  *annotation.Editor
	ink     *ink.Layer
	canvas  *canvas.Canvas

	statusBar *widget.Label
	prefs     *prefs.Prefs
	resolver  *assets.Resolver
	searcher  search.Searcher
	log       *slog.Logger

	// Full-resolution pixels of the current frame, kept for region search.
	mediaImage *image.RGBA

	// Load handles for overlays in flight, cancelled on window close.
	loads []*overlay.LoadHandle
}

// New creates the main window wired to its collaborators.
func New(fyneApp fyne.App, s *session.Session, store annotation.Store, creator *annotation.Creator, editor *annotation.Editor, inkLayer *ink.Layer, p *prefs.Prefs, log *slog.Logger) *MainWindow {
	if log == nil {
		log = slog.Default()
	}
	win := fyneApp.NewWindow("Media Markup")

	mw := &MainWindow{
		Window:    win,
		app:       fyneApp,
		session:   s,
		store:     store,
		creator:   creator,
		editor:    editor,
		ink:       inkLayer,
		statusBar: widget.NewLabel("No media loaded"),
		prefs:     p,
		log:       log,
	}

	mw.canvas = canvas.New(s, creator, editor, inkLayer, log)
	mw.canvas.OnInputRequested(mw.openAnnotationInput)
	mw.canvas.OnMarkerTapped(mw.startEdit)

	creator.OnCommit(func(a annotation.Annotation) {
		s.Upsert(a)
		mw.setStatus(fmt.Sprintf("Annotation %s created", a.ID))
	})
	creator.OnSearch(mw.runSearch)

	if resolver, err := assets.FromEnv(); err != nil {
		log.Warn("asset resolver unavailable, overlays accept absolute URLs only", "err", err)
	} else {
		mw.resolver = resolver
	}

	mw.setupUI()
	win.Resize(fyne.NewSize(1200, 800))
	win.SetOnClosed(func() {
		for _, h := range mw.loads {
			h.Cancel()
		}
	})
	return mw
}

func (mw *MainWindow) setupUI() {
	toolbar := container.NewHBox(
		widget.NewButton("Open", mw.openMedia),
		widget.NewButton("Add overlay", mw.addOverlay),
		widget.NewSeparator(),
		mw.toolButton("Cursor", annotation.ToolCursor),
		mw.toolButton("Rect", annotation.ToolRect),
		mw.toolButton("Circle", annotation.ToolCircle),
		mw.toolButton("Arrow", annotation.ToolArrow),
		mw.toolButton("Text", annotation.ToolText),
		mw.toolButton("Pen", annotation.ToolPen),
		mw.toolButton("Search", annotation.ToolSearch),
		widget.NewSeparator(),
		mw.colorSelect(),
		widget.NewSeparator(),
		widget.NewButton("Undo stroke", func() { mw.ink.UndoStroke() }),
		widget.NewButton("Save ink", mw.saveInk),
		widget.NewButton("Clear ink", mw.clearInk),
		widget.NewSeparator(),
		mw.findingsCheck(),
	)

	mw.SetContent(container.NewBorder(toolbar, mw.statusBar, nil, nil, mw.canvas))
}

func (mw *MainWindow) toolButton(label string, tool annotation.Tool) *widget.Button {
	return widget.NewButton(label, func() {
		mw.session.SetTool(tool)
		mw.setStatus(fmt.Sprintf("Tool: %s", tool))
	})
}

func (mw *MainWindow) colorSelect() *widget.Select {
	sel := widget.NewSelect(palette, func(c string) {
		mw.session.SetColor(c)
		mw.prefs.Set(prefs.KeyLastColor, c)
		_ = mw.prefs.Save()
	})
	sel.SetSelected(mw.prefs.String(prefs.KeyLastColor, palette[0]))
	return sel
}

func (mw *MainWindow) findingsCheck() *widget.Check {
	check := widget.NewCheck("Findings", func(on bool) {
		mw.canvas.SetFindingsVisible(on)
		mw.prefs.Set(prefs.KeyFindingsVisible, on)
		_ = mw.prefs.Save()
	})
	check.SetChecked(mw.prefs.Bool(prefs.KeyFindingsVisible, true))
	return check
}

// openMedia shows a file picker and loads the chosen image.
func (mw *MainWindow) openMedia() {
	fd := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil || reader == nil {
			return
		}
		defer reader.Close()
		mw.loadImage(reader.URI().Path())
	}, mw.Window)
	fd.SetFilter(storage.NewExtensionFileFilter([]string{".png", ".jpg", ".jpeg", ".bmp", ".tiff", ".webp"}))
	fd.Show()
}

// LoadMedia loads a media file given by path, e.g. from argv.
func (mw *MainWindow) LoadMedia(path string) {
	mw.loadImage(path)
}

func (mw *MainWindow) loadImage(path string) {
	rgba, frame, err := media.LoadImage(path)
	if err != nil {
		dialog.ShowError(err, mw.Window)
		return
	}
	mw.session.SetMedia(frame, false)
	mw.mediaImage = rgba
	mw.canvas.SetMediaImage(rgba)
	mw.prefs.Set(prefs.KeyLastDirectory, filepath.Dir(path))
	_ = mw.prefs.Save()
	mw.setStatus(fmt.Sprintf("Loaded %s (%dx%d)", filepath.Base(path), frame.NaturalWidth, frame.NaturalHeight))
}

// addOverlay prompts for a storage ref or URL and loads it as a reference
// overlay. Storage refs go through the signed asset resolver.
func (mw *MainWindow) addOverlay() {
	entry := widget.NewEntry()
	entry.SetPlaceHolder("Storage ref or image URL")

	dialog.ShowCustomConfirm("Add overlay", "Load", "Cancel", entry, func(ok bool) {
		if !ok || entry.Text == "" {
			return
		}
		url := entry.Text
		if mw.resolver != nil {
			resolved, err := mw.resolver.Resolve(entry.Text)
			if err != nil {
				dialog.ShowError(err, mw.Window)
				return
			}
			url = resolved
		}

		ov := overlay.New(entry.Text, geometry.Point2D{X: 0.1, Y: 0.1})
		mw.session.Overlays.Add(ov)
		handle := overlay.StartLoad(context.Background(), ov, overlay.FetchURL(nil, url), func() {
			mw.canvas.Refresh()
		}, mw.log)
		mw.loads = append(mw.loads, handle)
	}, mw.Window)
}

// openAnnotationInput collects the text for an annotation awaiting input.
func (mw *MainWindow) openAnnotationInput() {
	entry := widget.NewMultiLineEntry()
	entry.SetPlaceHolder("Describe the issue")

	d := dialog.NewCustomConfirm("Annotation", "Save", "Discard", entry, func(save bool) {
		if !save {
			mw.creator.Cancel()
			return
		}
		if _, err := mw.creator.Submit(context.Background(), mw.session.Metrics(), entry.Text, ""); err != nil {
			mw.log.Warn("annotation submit failed", "err", err)
			dialog.ShowError(err, mw.Window)
		}
	}, mw.Window)
	d.Resize(fyne.NewSize(400, 220))
	d.Show()
}

// startEdit begins moving/resizing an existing marker.
func (mw *MainWindow) startEdit(a annotation.Annotation) {
	if err := mw.editor.Start(a); err != nil {
		mw.setStatus(err.Error())
		return
	}
	mw.setStatus(fmt.Sprintf("Editing %s (drag to move, Enter to save)", a.ID))

	mw.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
		switch ev.Name {
		case fyne.KeyReturn, fyne.KeyEnter:
			if err := mw.editor.Finish(context.Background()); err != nil {
				mw.setStatus(fmt.Sprintf("Save failed: %v", err))
				return
			}
			mw.Canvas().SetOnTypedKey(nil)
			mw.setStatus("Saved")
		case fyne.KeyEscape:
			mw.editor.Cancel()
			mw.Canvas().SetOnTypedKey(nil)
			mw.setStatus("Edit cancelled")
		}
	})
}

func (mw *MainWindow) saveInk() {
	if err := mw.ink.Save(context.Background(), mw.store); err != nil {
		dialog.ShowError(err, mw.Window)
		return
	}
	mw.setStatus("Ink saved")
}

func (mw *MainWindow) clearInk() {
	dialog.ShowConfirm("Clear ink", "Remove all pen strokes?", func(ok bool) {
		if ok {
			mw.ink.Clear()
		}
	}, mw.Window)
}

// SetSearcher installs the region-search backend. Without one the search
// tool reports that search is not configured.
func (mw *MainWindow) SetSearcher(s search.Searcher) { mw.searcher = s }

// runSearch fires the injected searcher on a media-space crop selected
// with the search tool and reports the best hits in the status bar.
func (mw *MainWindow) runSearch(region geometry.Rect) {
	if mw.searcher == nil {
		mw.setStatus("Search is not configured")
		return
	}
	img := mw.mediaImage
	if img == nil {
		mw.setStatus("Load media before searching")
		return
	}

	mw.setStatus("Searching...")
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), searchTimeout)
		defer cancel()

		results, err := mw.searcher.SearchRegion(ctx, img, region)
		if err != nil {
			mw.log.Warn("region search failed", "err", err)
			mw.setStatus(fmt.Sprintf("Search failed: %v", err))
			return
		}
		mw.setStatus(formatSearchStatus(results))
	}()
}

// formatSearchStatus renders up to three hits for the status bar.
func formatSearchStatus(results []search.Result) string {
	if len(results) == 0 {
		return "Search: no matches"
	}
	n := len(results)
	if n > 3 {
		n = 3
	}
	parts := make([]string, 0, n)
	for _, r := range results[:n] {
		parts = append(parts, fmt.Sprintf("%s (%.2f)", r.Title, r.Score))
	}
	return "Search: " + strings.Join(parts, ", ")
}

func (mw *MainWindow) setStatus(msg string) {
	mw.statusBar.SetText(msg)
}
