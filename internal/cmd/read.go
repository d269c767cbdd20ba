package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/metcalfc/aeonsight/internal/app"
	"github.com/metcalfc/aeonsight/internal/idle"
	"github.com/metcalfc/aeonsight/internal/speech"
	"github.com/metcalfc/aeonsight/internal/tui"
)

func newReadCmd(e *env) *cobra.Command {
	var (
		file  string
		voice string
	)
	cmd := &cobra.Command{
		Use:   "read [id]",
		Short: "Open the reader",
		Long: `Open the interactive reader on the library, or directly on a document.

With an id, that library item opens at its last position. With --file the
document is added to the library first (re-adding the same file reuses the
existing entry) and then opened.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := e.library()
			if err != nil {
				return err
			}
			prefs, err := e.preferences()
			if err != nil {
				return err
			}

			var openID string
			if len(args) == 1 {
				openID = args[0]
			}
			if file != "" {
				item, err := addFile(cmd.Context(), lib, file)
				if err != nil {
					return err
				}
				openID = item.ID
			}

			synth, err := app.NewSynthesizer(voice, prefs.Get().TTS)
			if errors.Is(err, speech.ErrSpeechUnsupported) {
				e.logger.Printf("speech: %v; read-aloud disabled", err)
				synth = nil
			} else if err != nil {
				return err
			}

			ctrl, err := app.New(app.Options{
				Library: lib,
				Prefs:   prefs,
				Synth:   synth,
				// The message is drawn by the reader; the terminal only rings.
				Alerter: idle.AlertFunc(func(string) { fmt.Fprint(os.Stderr, "\a") }),
				Logger:  e.logger,
			})
			if err != nil {
				return err
			}
			defer ctrl.Close()

			return tui.Run(ctrl, openID)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Add this file to the library and open it")
	cmd.Flags().StringVar(&voice, "voice", app.VoiceSystem, "Read-aloud backend: system, paced or off")
	return cmd
}
