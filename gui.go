//go:build gui

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"github.com/metcalfc/aeonsight/internal/app"
	"github.com/metcalfc/aeonsight/internal/cmd"
	"github.com/metcalfc/aeonsight/internal/config"
	"github.com/metcalfc/aeonsight/internal/idle"
	"github.com/metcalfc/aeonsight/internal/library"
	"github.com/metcalfc/aeonsight/internal/reader"
	"github.com/metcalfc/aeonsight/internal/sandbox"
	"github.com/metcalfc/aeonsight/internal/session"
	"github.com/metcalfc/aeonsight/internal/speech"
	"github.com/metcalfc/aeonsight/internal/state"
)

// documentSegments renders the current unit, with the sentence being read
// in bold.
func documentSegments(v reader.View) []widget.RichTextSegment {
	segs := make([]widget.RichTextSegment, 0, len(v.Blocks))
	for i, block := range v.Blocks {
		style := widget.RichTextStyleParagraph
		if i == v.Marked {
			style = widget.RichTextStyleStrong
			style.Inline = false
		}
		segs = append(segs, &widget.TextSegment{Text: block, Style: style})
	}
	return segs
}

func statusLine(snap app.Snapshot) string {
	parts := []string{
		snap.View.Label,
		"Progress " + snap.Progress.String(),
		"Time " + snap.Stats.ElapsedString(),
		"WPM " + snap.Stats.WPMString(),
		"Scripts " + snap.Sandbox.String(),
	}
	if snap.SpeechAvailable {
		voice := "Voice " + snap.Speech.String()
		if snap.Follow {
			voice += " (follow)"
		}
		parts = append(parts, voice)
	}
	return strings.Join(parts, " | ")
}

func openStores(cfg config.Config, stateDir string, logger *log.Logger) (*library.Store, *state.Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}
	lib, err := library.Open(cfg.LibraryPath(), logger)
	if err != nil {
		return nil, nil, err
	}
	if stateDir == "" {
		stateDir = state.Dir()
	}
	prefs, err := state.Open(stateDir)
	if err != nil {
		lib.Close()
		return nil, nil, fmt.Errorf("open preferences: %w", err)
	}
	return lib, prefs, nil
}

func main() {
	voice := flag.String("voice", app.VoiceSystem, "Read-aloud backend: system, paced or off")
	dataDir := flag.String("data-dir", "", "Library directory (default $AEON_DATA_DIR or ~/.local/share/aeonsight)")
	stateDir := flag.String("state-dir", "", "Preferences directory")
	verbose := flag.Bool("verbose", false, "Log to stderr")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "aeonsight-gui - desktop reader\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  aeonsight-gui [options] [file | library id]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nWithout an argument the most recently added document opens.\n")
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("aeonsight-gui %s (commit: %s, built: %s)\n", cmd.Version, cmd.Commit, cmd.Date)
		os.Exit(0)
	}

	logger := log.New(io.Discard, "", 0)
	if *verbose {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	lib, prefs, err := openStores(cfg, *stateDir, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer lib.Close()

	synth, err := app.NewSynthesizer(*voice, prefs.Get().TTS)
	if err != nil && !errors.Is(err, speech.ErrSpeechUnsupported) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	ctrl, err := app.New(app.Options{
		Library: lib,
		Prefs:   prefs,
		Synth:   synth,
		Alerter: idle.BellAlerter{W: os.Stderr},
		Logger:  logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer ctrl.Close()

	ctx := context.Background()
	if err := openInitial(ctx, ctrl, flag.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	run(ctrl)
}

// openInitial opens arg, which is a file path or a library id, or the
// newest library item when arg is empty.
func openInitial(ctx context.Context, ctrl *app.Controller, arg string) error {
	if arg != "" {
		if data, err := os.ReadFile(arg); err == nil {
			item, err := ctrl.Add(ctx, filepath.Base(arg), data)
			if err != nil {
				return err
			}
			return ctrl.Open(ctx, item.ID)
		}
		return ctrl.Open(ctx, arg)
	}
	items, err := ctrl.List(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return errors.New("the library is empty; pass a file to read")
	}
	return ctrl.Open(ctx, items[0].ID)
}

func run(ctrl *app.Controller) {
	ctx := context.Background()
	a := fyneapp.New()
	w := a.NewWindow("aeonsight")

	statusLabel := widget.NewLabel("")
	statusLabel.Alignment = fyne.TextAlignCenter
	messageLabel := widget.NewLabel("")
	messageLabel.Wrapping = fyne.TextWrapWord

	controlsLabel := widget.NewLabel("SPACE: read aloud/pause  S: stop  ←/→: page  O: follow  B: bookmark  T: contents  X: scripts  F: fullscreen  Q: quit")
	controlsLabel.Alignment = fyne.TextAlignCenter

	document := widget.NewRichText()
	document.Wrapping = fyne.TextWrapWord
	scroll := container.NewVScroll(document)

	speaking := widget.NewLabel("")
	speaking.Wrapping = fyne.TextWrapWord
	speaking.TextStyle.Bold = true

	var mu sync.Mutex
	var lastErr string
	report := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		lastErr = ""
		if err != nil && !errors.Is(err, reader.ErrBoundary) {
			lastErr = err.Error()
		}
	}
	// Commands can block on document loads, so they run off the UI thread.
	do := func(fn func() error) {
		ctrl.Activity()
		go func() { report(fn()) }()
	}

	tocList := widget.NewList(
		func() int { return len(ctrl.Session().TOC()) },
		func() fyne.CanvasObject {
			return container.NewVBox(widget.NewLabel("Title"), widget.NewLabel("Preview"))
		},
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			toc := ctrl.Session().TOC()
			if id >= len(toc) {
				return
			}
			entry := toc[id]
			vbox := obj.(*fyne.Container)
			titleLabel := vbox.Objects[0].(*widget.Label)
			previewLabel := vbox.Objects[1].(*widget.Label)

			indent := strings.Repeat("  ", entry.Level)
			titleLabel.SetText(indent + entry.Title)
			titleLabel.TextStyle.Bold = true

			preview := []rune(entry.Preview)
			if len(preview) > 50 {
				preview = append(preview[:50], []rune("...")...)
			}
			previewLabel.SetText(indent + string(preview))
		},
	)
	tocContainer := container.NewBorder(
		widget.NewLabel("Table of Contents"),
		widget.NewLabel("Click to jump • T to close"),
		nil, nil,
		tocList,
	)
	tocContainer.Hide()

	readingContent := container.NewBorder(
		container.NewVBox(statusLabel, messageLabel),
		container.NewVBox(speaking, controlsLabel),
		nil, nil,
		scroll,
	)
	split := container.NewHSplit(tocContainer, readingContent)
	split.Offset = 0.33

	tocList.OnSelected = func(id widget.ListItemID) {
		toc := ctrl.Session().TOC()
		if id < len(toc) {
			entry := toc[id]
			do(func() error { return ctrl.Jump(ctx, entry) })
			tocContainer.Hide()
			split.Refresh()
		}
		tocList.UnselectAll()
	}

	var lastLabel string
	updateDisplay := func() {
		snap := ctrl.Snapshot()
		if snap.Name != "" {
			w.SetTitle("aeonsight - " + snap.Name)
		}
		switch snap.State {
		case session.Ready:
			statusLabel.SetText(statusLine(snap))
		default:
			statusLabel.SetText(snap.State.String())
		}

		document.Segments = documentSegments(snap.View)
		document.Refresh()
		if snap.View.Label != lastLabel {
			lastLabel = snap.View.Label
			scroll.ScrollToTop()
		}

		speaking.SetText(snap.Highlight.Current)

		mu.Lock()
		msg := lastErr
		mu.Unlock()
		switch {
		case snap.Alert != "":
			msg = snap.Alert
		case msg == "":
			msg = snap.Status
		}
		messageLabel.SetText(msg)
	}

	ticker := time.NewTicker(250 * time.Millisecond)
	done := make(chan bool)
	var closeOnce sync.Once
	quit := func() {
		closeOnce.Do(func() {
			ticker.Stop()
			close(done)
		})
	}

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fyne.Do(updateDisplay)
			}
		}
	}()

	w.Canvas().SetOnTypedKey(func(key *fyne.KeyEvent) {
		switch key.Name {
		case fyne.KeySpace:
			if ctrl.Snapshot().Speech == speech.Idle {
				do(ctrl.Play)
			} else {
				do(ctrl.TogglePause)
			}
		case fyne.KeyLeft, fyne.KeyPageUp:
			do(func() error { return ctrl.Navigate(ctx, session.Prev) })
		case fyne.KeyRight, fyne.KeyPageDown:
			do(func() error { return ctrl.Navigate(ctx, session.Next) })
		case fyne.KeyS:
			ctrl.Stop()
		case fyne.KeyF:
			ctrl.Activity()
			w.SetFullScreen(!w.FullScreen())
		case fyne.KeyQ:
			quit()
			a.Quit()
		default:
			ctrl.Activity()
		}
	})

	w.Canvas().SetOnTypedRune(func(r rune) {
		switch r {
		case 't', 'T':
			ctrl.Activity()
			if len(ctrl.Session().TOC()) == 0 {
				report(errors.New("this document has no table of contents"))
				return
			}
			if tocContainer.Visible() {
				tocContainer.Hide()
			} else {
				tocList.Refresh()
				tocContainer.Show()
			}
			split.Refresh()
		case 'o', 'O':
			on := !ctrl.Snapshot().Follow
			do(func() error { return ctrl.SetFollow(on) })
		case 'b', 'B':
			do(func() error {
				_, err := ctrl.Bookmark(ctx, "")
				return err
			})
		case 'x', 'X':
			next := sandbox.ScriptsAllowed
			if ctrl.Snapshot().Sandbox == sandbox.ScriptsAllowed {
				next = sandbox.ScriptsBlocked
			}
			do(func() error { return ctrl.SetSandboxMode(ctx, next) })
		}
	})

	w.Resize(fyne.NewSize(900, 700))
	w.SetContent(split)
	w.SetOnClosed(quit)

	go func() {
		time.Sleep(100 * time.Millisecond)
		fyne.Do(updateDisplay)
	}()

	w.ShowAndRun()
}
