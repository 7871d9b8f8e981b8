// Package cli implements skinctl, the operator tool for models and the database.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Brownie44l1/skinlens/internal/logger"
	"github.com/Brownie44l1/skinlens/internal/model"
)

const Version = "0.1.0"

var (
	log      *zap.SugaredLogger
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:           "skinctl",
	Short:         "Operate the skin lesion classifier and its database",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		log, err = logger.NewSugared(logLevel, true)
		if err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
}

// modelOptions locates the checkpoint for predict and batch.
type modelOptions struct {
	path         string
	backend      string
	metadataPath string
	onnxLib      string
}

func (o *modelOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.path, "model", "m", "models/best_multimodal_model.safetensors", "Model checkpoint (.safetensors for native, .onnx for onnx)")
	cmd.Flags().StringVarP(&o.backend, "backend", "b", string(model.BackendNative), "Inference backend (native or onnx)")
	cmd.Flags().StringVar(&o.metadataPath, "model-metadata", "", "Model metadata JSON (optional)")
	cmd.Flags().StringVar(&o.onnxLib, "onnx-lib", "", "Path to the onnxruntime shared library")
}

func (o *modelOptions) load() (*model.Server, error) {
	return model.NewServer(model.Config{
		Backend:           model.Backend(o.backend),
		ModelPath:         o.path,
		MetadataPath:      o.metadataPath,
		SharedLibraryPath: o.onnxLib,
	}, log.Desugar())
}
