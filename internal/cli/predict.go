package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Brownie44l1/skinlens/internal/prediction"
)

var (
	predictModel    modelOptions
	predictMetadata string
)

var predictCmd = &cobra.Command{
	Use:   "predict <image>",
	Short: "Classify one image with a local model",
	Long: `Runs the same pipeline as POST /predict against a local checkpoint and
prints the response JSON. --metadata takes a JSON object or @path/to/file.json.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		image, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read image: %w", err)
		}
		metadata, err := readMetadataArg(predictMetadata)
		if err != nil {
			return err
		}

		srv, err := predictModel.load()
		if err != nil {
			return err
		}
		defer srv.Close()

		var resp prediction.Response
		p, err := srv.Predict(cmd.Context(), image, metadata)
		if err != nil {
			resp = prediction.Failure(err)
		} else {
			resp = prediction.Success(p)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return err
		}
		if !resp.Success {
			return fmt.Errorf("prediction failed")
		}
		return nil
	},
}

func init() {
	predictModel.register(predictCmd)
	predictCmd.Flags().StringVar(&predictMetadata, "metadata", "{}", "Metadata JSON object or @file")
	rootCmd.AddCommand(predictCmd)
}

func readMetadataArg(arg string) ([]byte, error) {
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read metadata file: %w", err)
		}
		return raw, nil
	}
	return []byte(arg), nil
}
