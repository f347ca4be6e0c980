package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jwebster45206/divergence-engine/pkg/scenario"
	"github.com/jwebster45206/divergence-engine/pkg/scene"
	"github.com/jwebster45206/divergence-engine/pkg/state"
)

var errStrict = errors.New("scene needed repairs")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "validate",
		Short:         "Check model output and scenario files offline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newSceneCmd(), newScenarioCmd(), newSchemaCmd())
	return root
}

type sceneOptions struct {
	chapter string
	strict  bool
	print   bool
}

func newSceneCmd() *cobra.Command {
	opts := &sceneOptions{}
	cmd := &cobra.Command{
		Use:   "scene <file|->",
		Short: "Extract and coerce a raw model reply",
		Long: `Runs the text extractor and scene coercer over a saved model reply and
lists every repair. With --chapter, also checks chapter progression from
the given current chapter.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScene(cmd, args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.chapter, "chapter", "", "current chapter to check progression from")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "fail when any field needed repair")
	cmd.Flags().BoolVar(&opts.print, "print", false, "print the coerced scene as JSON")
	return cmd
}

func runScene(cmd *cobra.Command, path string, opts *sceneOptions) error {
	out := cmd.OutOrStdout()

	data, err := readInput(cmd.InOrStdin(), path)
	if err != nil {
		return err
	}

	raw, err := scene.Extract(string(data))
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}

	s, report := scene.CoerceWithReport(raw)
	switch {
	case report.Fallback:
		fmt.Fprintln(out, "Reply is not an object; fallback scene used")
	case report.Repaired():
		fmt.Fprintf(out, "%d repair(s):\n", len(report.Repairs))
		for _, r := range report.Repairs {
			fmt.Fprintf(out, "  - %s\n", r)
		}
	default:
		fmt.Fprintln(out, "Scene is valid, no repairs needed")
	}

	if opts.chapter != "" {
		current, err := state.ParseChapter(opts.chapter)
		if err != nil {
			return err
		}
		next, ok := state.ClampChapter(current, s.Chapter)
		if ok {
			fmt.Fprintf(out, "Chapter %s -> %s: ok\n", current, s.Chapter)
		} else {
			fmt.Fprintf(out, "Chapter %s -> %s: violation, clamps to %s\n", current, s.Chapter, next)
		}
	}

	if opts.print {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		if err := enc.Encode(s); err != nil {
			return err
		}
	}

	if opts.strict && (report.Fallback || report.Repaired()) {
		return errStrict
	}
	return nil
}

func newScenarioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenario <file>",
		Short: "Validate a scenario YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := scenario.LoadFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Scenario %q is valid (%d chapter notes, %d endings)\n",
				sc.Title, len(sc.Chapters), len(sc.Endings))
			return nil
		},
	}
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the scene JSON schema given to the model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := cmd.OutOrStdout().Write(append(scene.Schema(), '\n'))
			return err
		},
	}
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return data, nil
}
