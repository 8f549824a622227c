package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ent0n29/neutralize/internal/app"
	"github.com/ent0n29/neutralize/internal/history"
	"github.com/ent0n29/neutralize/internal/jobdesc"
	"github.com/ent0n29/neutralize/internal/languages"
	"github.com/ent0n29/neutralize/internal/speech"
	"github.com/ent0n29/neutralize/internal/translate"
)

// inputText returns the joined arguments, or one spoken English phrase when fromMic is set.
func inputText(cmd *cobra.Command, res *app.BuildResult, args []string, fromMic bool) (string, error) {
	if !fromMic {
		return strings.TrimSpace(strings.Join(args, " ")), nil
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "Listening...")
	text, err := res.Capturer.Capture(cmd.Context(), languages.MustLookup("en").Locale)
	if err != nil {
		if cmd.Context().Err() != nil {
			return "", cmd.Context().Err()
		}
		return "", errors.New(speech.Message(err))
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Recognized: %s\n", text)
	return text, nil
}

func (c *cli) analyzeCmd() *cobra.Command {
	var fromMic bool
	cmd := &cobra.Command{
		Use:   "analyze [sentence]",
		Short: "Detect, score and correct gender bias in a sentence",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.build(cmd.Context(), fromMic)
			if err != nil {
				return err
			}
			defer c.cleanup(res)

			sentence, err := inputText(cmd, res, args, fromMic)
			if err != nil {
				return err
			}
			analysis, err := res.Bias.Analyze(cmd.Context(), sentence)
			if err != nil {
				return err
			}
			res.History.Record(cmd.Context(), history.KindBiasAnalysis, sentence,
				analysis.Biased+" | "+analysis.Score+" | "+analysis.Corrected, analysis.Backend)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Bias detected: %s\n", analysis.Biased)
			fmt.Fprintf(out, "Bias score: %s\n", analysis.Score)
			fmt.Fprintf(out, "Gender-neutral version: %s\n", analysis.Corrected)
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromMic, "mic", false, "speak the sentence instead of passing it as arguments")
	return cmd
}

func (c *cli) jobdescCmd() *cobra.Command {
	var (
		fromMic     bool
		maxTokens   int
		temperature float64
	)
	cmd := &cobra.Command{
		Use:   "jobdesc [title]",
		Short: "Generate a gender-neutral job description",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.build(cmd.Context(), fromMic)
			if err != nil {
				return err
			}
			defer c.cleanup(res)

			title, err := inputText(cmd, res, args, fromMic)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("max-tokens") {
				maxTokens = c.cfg.JobDescMaxTokens
			}
			if !cmd.Flags().Changed("temperature") {
				temperature = c.cfg.JobDescTemperature
			}
			desc, err := res.Jobs.Describe(cmd.Context(), jobdesc.Request{
				Title:       title,
				MaxTokens:   maxTokens,
				Temperature: temperature,
			})
			if err != nil {
				return err
			}
			res.History.Record(cmd.Context(), history.KindJobDescription, desc.Title, desc.Text, desc.Backend)
			fmt.Fprintln(cmd.OutOrStdout(), desc.Text)
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromMic, "mic", false, "speak the job title")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", jobdesc.DefaultMaxTokens, "maximum generated tokens (100-700)")
	cmd.Flags().Float64Var(&temperature, "temperature", jobdesc.DefaultTemperature, "sampling temperature (0.0-1.0)")
	return cmd
}

func (c *cli) translateCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "translate <text>",
		Short: "Translate text between the supported languages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.build(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer c.cleanup(res)

			text := strings.Join(args, " ")
			out, err := res.Translator.Translate(cmd.Context(), translate.Request{Text: text, Source: from, Target: to})
			if err != nil {
				return err
			}
			res.History.Record(cmd.Context(), history.KindTranslation, text, out.Text, out.Backend)
			fmt.Fprintln(cmd.OutOrStdout(), out.Text)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", languages.Auto, "source language name or code, or auto")
	cmd.Flags().StringVar(&to, "to", "", "target language name or code")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func (c *cli) modeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mode",
		Short: "Show the connectivity mode and the resolved backends",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := c.build(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer c.cleanup(res)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"mode":       res.Mode.Status(),
				"generation": res.Backends,
				"voice":      res.Voice,
			})
		},
	}
}

func (c *cli) historyCmd() *cobra.Command {
	var (
		kind  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent results (persistent only when DATABASE_URL is set)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := c.build(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer c.cleanup(res)

			records, err := res.History.Recent(cmd.Context(), history.Query{Kind: history.Kind(kind), Limit: limit})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range records {
				fmt.Fprintf(out, "%s  %-16s  %s -> %s\n", r.CreatedAt.Format("2006-01-02 15:04:05"), r.Kind, r.Input, r.Output)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "filter by record kind")
	cmd.Flags().IntVar(&limit, "limit", history.DefaultLimit, "number of records")
	return cmd
}
