package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/metcalfc/aeonsight/internal/state"
)

func newPrefsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show reading preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			prefs, err := e.preferences()
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(prefs.Get())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", prefs.Path(), data)
			return nil
		},
	}
	cmd.AddCommand(newPrefsSetCmd(e))
	return cmd
}

func newPrefsSetCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change a preference",
		Long: `Change a preference. Keys: font_scale, width, idle_minutes, sandbox,
tts.rate, tts.pitch, tts.voice, tts.follow, theme, resume_key.
Out-of-range values are clamped.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefs, err := e.preferences()
			if err != nil {
				return err
			}
			apply, err := prefSetter(args[0], args[1])
			if err != nil {
				return err
			}
			next, err := prefs.Update(apply)
			if err != nil {
				return fmt.Errorf("save preferences: %w", err)
			}
			data, _ := yaml.Marshal(next)
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func prefSetter(key, value string) (func(*state.Preferences), error) {
	atoi := func() (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("%s: %q is not a number", key, value)
		}
		return n, nil
	}
	atof := func() (float64, error) {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %q is not a number", key, value)
		}
		return f, nil
	}

	switch key {
	case "font_scale":
		n, err := atoi()
		return func(p *state.Preferences) { p.FontScale = n }, err
	case "idle_minutes":
		n, err := atoi()
		return func(p *state.Preferences) { p.IdleMinutes = n }, err
	case "width":
		return func(p *state.Preferences) { p.Width = value }, nil
	case "sandbox":
		return func(p *state.Preferences) { p.Sandbox = value }, nil
	case "theme":
		return func(p *state.Preferences) { p.Theme = value }, nil
	case "resume_key":
		return func(p *state.Preferences) { p.ResumeKey = value }, nil
	case "tts.rate":
		f, err := atof()
		return func(p *state.Preferences) { p.TTS.Rate = f }, err
	case "tts.pitch":
		f, err := atof()
		return func(p *state.Preferences) { p.TTS.Pitch = f }, err
	case "tts.voice":
		return func(p *state.Preferences) { p.TTS.Voice = value }, nil
	case "tts.follow":
		b, err := strconv.ParseBool(value)
		return func(p *state.Preferences) { p.TTS.Follow = b }, err
	}
	return nil, fmt.Errorf("unknown preference %q", key)
}
