package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ent0n29/neutralize/internal/history"
	"github.com/ent0n29/neutralize/internal/interpreter"
	"github.com/ent0n29/neutralize/internal/languages"
	"github.com/ent0n29/neutralize/internal/speech"
)

func (c *cli) listenCmd() *cobra.Command {
	var language string
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Recognize one spoken phrase from the microphone",
		RunE: func(cmd *cobra.Command, _ []string) error {
			lang, err := languages.Lookup(language)
			if err != nil {
				return err
			}
			res, err := c.build(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer c.cleanup(res)

			fmt.Fprintln(cmd.ErrOrStderr(), "Listening...")
			text, err := res.Capturer.Capture(cmd.Context(), lang.Locale)
			if err != nil {
				if cmd.Context().Err() != nil {
					return nil
				}
				return errors.New(speech.Message(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().StringVar(&language, "language", languages.DefaultParticipant1, "spoken language")
	return cmd
}

func (c *cli) sayCmd() *cobra.Command {
	var language string
	cmd := &cobra.Command{
		Use:   "say <text>",
		Short: "Speak text aloud",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lang, err := languages.Lookup(language)
			if err != nil {
				return err
			}
			res, err := c.build(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer c.cleanup(res)
			return res.Speaker.Speak(cmd.Context(), strings.Join(args, " "), lang.Locale)
		},
	}
	cmd.Flags().StringVar(&language, "language", languages.DefaultParticipant1, "language to speak in")
	return cmd
}

func (c *cli) interpretCmd() *cobra.Command {
	var lang1, lang2 string
	cmd := &cobra.Command{
		Use:   "interpret",
		Short: "Interpret a spoken conversation between two languages until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p1, err := languages.Lookup(lang1)
			if err != nil {
				return err
			}
			p2, err := languages.Lookup(lang2)
			if err != nil {
				return err
			}
			res, err := c.build(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer c.cleanup(res)

			out := cmd.OutOrStdout()
			in := interpreter.New(
				interpreter.MicListener{Capturer: res.Capturer},
				res.Translator,
				interpreter.SpeakerOutput{Speaker: res.Speaker},
				interpreter.Config{
					Participant1: p1,
					Participant2: p2,
					OnTurn: func(t interpreter.Turn) {
						fmt.Fprintf(out, "[%d] %s (%s): %s\n", t.Number, speakerLabel(t.Speaker), t.Source.Name, t.Recognized)
						if t.Translation != "" {
							fmt.Fprintf(out, "    -> %s: %s\n", t.Target.Name, t.Translation)
						}
						if t.Error != "" {
							fmt.Fprintf(out, "    ! %s\n", t.Error)
						}
						res.History.Record(cmd.Context(), history.KindInterpreter, t.Recognized, t.Translation, t.Backend)
					},
				},
				res.Metrics,
				res.Logger,
			)
			fmt.Fprintf(out, "Interpreting %s <> %s. Press Ctrl+C to stop.\n", p1.Name, p2.Name)
			return in.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&lang1, "lang1", languages.DefaultParticipant1, "participant 1 language")
	cmd.Flags().StringVar(&lang2, "lang2", languages.DefaultParticipant2, "participant 2 language")
	return cmd
}

func speakerLabel(n int) string {
	return fmt.Sprintf("Speaker %d", n)
}
