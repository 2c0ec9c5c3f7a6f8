// Package main provides the entry point for the Media Markup application.
package main

import (
	"log/slog"
	"os"

	"fyne.io/fyne/v2/app"

	"media-markup/internal/annotation"
	"media-markup/internal/ink"
	"media-markup/internal/search"
	"media-markup/internal/session"
	"media-markup/internal/version"
	"media-markup/ui/mainwindow"
	"media-markup/ui/prefs"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(log)
	log.Info("starting media-markup", "version", version.Version, "commit", version.GitCommit, "built", version.BuildTime)

	fyneApp := app.NewWithID("media-markup")

	sess := session.New(log)
	store := annotation.NewMemoryStore()
	creator := annotation.NewCreator(store, sess.Playback, log)
	editor := annotation.NewEditor(store, log)
	inkLayer := ink.NewLayer(ink.ScopeID("local", 1))
	appPrefs := prefs.Load()

	win := mainwindow.New(fyneApp, sess, store, creator, editor, inkLayer, appPrefs, log)

	// The search tool needs a lookup backend; without one it stays inert.
	if endpoint := os.Getenv("SEARCH_ENDPOINT"); endpoint != "" {
		searcher, err := search.NewOCRSearcher(search.NewHTTPLookup(endpoint, nil), log)
		if err != nil {
			log.Warn("region search unavailable", "err", err)
		} else {
			defer searcher.Close()
			win.SetSearcher(searcher)
			log.Info("region search enabled", "endpoint", endpoint)
		}
	}

	if len(os.Args) > 1 {
		// Open the media file given on the command line after the window
		// appears.
		path := os.Args[1]
		log.Info("opening media from argv", "path", path)
		win.LoadMedia(path)
	}

	win.ShowAndRun()
}
