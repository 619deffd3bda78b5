package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"llamad/internal/controller"
)

func newGenerateCmd(opts *globalOpts) *cobra.Command {
	var (
		ef        engineFlags
		model     string
		maxTokens int
	)
	cmd := &cobra.Command{
		Use:   "generate --model MODEL PROMPT...",
		Short: "Load a model, stream one completion to stdout and exit",
		Example: "  llamad generate --model ~/models/llm/tinyllama.Q4_K_M.gguf Write a haiku about the sea\n" +
			"  echo 'Hello' | llamad generate --model tinyllama.Q4_K_M.gguf -",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cfg, err := resolveConfig(cmd, opts, &ef)
			if err != nil {
				return err
			}
			if model == "" {
				model = cfg.Model
			}
			if model == "" {
				return fmt.Errorf("--model is required")
			}
			prompt := strings.Join(args, " ")
			if prompt == "-" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				prompt = string(b)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			log := newLogger(opts, cfg.LogLevel)
			ctrl := controller.New(controllerConfig(cfg, &log))
			defer func() { err = multierr.Append(err, ctrl.Close()) }()

			if err := ctrl.Load(ctx, resolveModel(cfg.ModelsDir, model)); err != nil {
				return err
			}
			s, err := ctrl.Generate(ctx, controller.Request{Prompt: prompt, MaxTokens: maxTokens})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for tok := range s.Tokens() {
				if _, werr := io.WriteString(out, tok); werr != nil {
					s.Cancel()
				}
			}
			comp, err := s.Wait()
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			fmt.Fprintf(cmd.ErrOrStderr(), "finish_reason=%s prompt_tokens=%d completion_tokens=%d\n",
				comp.Reason, comp.PromptTokens, comp.CompletionTokens)
			return nil
		},
	}
	ef.register(cmd.Flags())
	cmd.Flags().StringVarP(&model, "model", "m", "", "Model id (in --models-dir) or path")
	cmd.Flags().IntVarP(&maxTokens, "num-tokens", "n", 0, "Token budget for this completion (0 = --max-tokens)")
	return cmd
}
