package cli

import (
	"bufio"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Brownie44l1/skinlens/internal/model"
	"github.com/Brownie44l1/skinlens/internal/nn"
)

var checkpointSeed uint64

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Create and inspect native model checkpoints",
}

var checkpointInitCmd = &cobra.Command{
	Use:   "init <out.safetensors>",
	Short: "Write a randomly initialized checkpoint with the serving layout",
	Long: `Writes every tensor the native backend expects, initialized from --seed.
Useful for smoke tests and for checking an exported checkpoint's layout.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := nn.InitParams(model.MultimodalSpecs(), checkpointSeed)
		if err := writeCheckpoint(args[0], params); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d tensors (%d parameters) to %s\n", len(params), countParams(params), args[0])
		return nil
	},
}

var checkpointVerifyCmd = &cobra.Command{
	Use:   "verify <checkpoint.safetensors>",
	Short: "Check that a checkpoint loads into the native backend",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := nn.LoadSafetensors(args[0])
		if err != nil {
			return err
		}
		if _, err := model.NewNativeClassifier(params); err != nil {
			return fmt.Errorf("checkpoint does not match the serving network: %w", err)
		}

		names := make([]string, 0, len(params))
		for name := range params {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			log.Debugw("Tensor", "name", name, "shape", params[name].Shape)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d tensors, %d parameters\n", len(params), countParams(params))
		return nil
	},
}

func init() {
	checkpointInitCmd.Flags().Uint64Var(&checkpointSeed, "seed", 1, "Random seed")
	checkpointCmd.AddCommand(checkpointInitCmd, checkpointVerifyCmd)
	rootCmd.AddCommand(checkpointCmd)
}

func writeCheckpoint(path string, params nn.Params) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := nn.EncodeSafetensors(w, params); err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}

func countParams(params nn.Params) int {
	n := 0
	for _, t := range params {
		n += t.Len()
	}
	return n
}
