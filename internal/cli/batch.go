package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Brownie44l1/skinlens/internal/prediction"
)

var (
	batchModel    modelOptions
	batchMetadata string
	batchWorkers  int
)

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Classify every image in a directory",
	Long: `Classifies each .jpg, .jpeg or .png under dir and writes one JSON line per
image to stdout. A sidecar <image>.json, when present, overrides --metadata.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		images, err := findImages(args[0])
		if err != nil {
			return err
		}
		if len(images) == 0 {
			return fmt.Errorf("no images found in %s", args[0])
		}
		metadata, err := readMetadataArg(batchMetadata)
		if err != nil {
			return err
		}

		srv, err := batchModel.load()
		if err != nil {
			return err
		}
		defer srv.Close()

		bar := progressbar.NewOptions(len(images),
			progressbar.OptionSetDescription("Classifying"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)
		results := classifyAll(cmd.Context(), srv, images, metadata, batchWorkers, func() { _ = bar.Add(1) })
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)

		summary, err := writeResults(cmd.OutOrStdout(), results)
		if err != nil {
			return err
		}
		log.Infow("Batch complete",
			"images", len(results),
			"malignant", summary[prediction.Malignant],
			"benign", summary[prediction.Benign],
			"failed", summary[""])
		return nil
	},
}

func init() {
	batchModel.register(batchCmd)
	batchCmd.Flags().StringVar(&batchMetadata, "metadata", "{}", "Metadata JSON object or @file applied to every image")
	batchCmd.Flags().IntVarP(&batchWorkers, "workers", "w", runtime.NumCPU(), "Number of images classified in parallel")
	rootCmd.AddCommand(batchCmd)
}

type predictor interface {
	Predict(ctx context.Context, image, metadata []byte) (prediction.Prediction, error)
}

type batchResult struct {
	File string `json:"file"`
	*prediction.Prediction
	Error string `json:"error,omitempty"`
}

func findImages(dir string) ([]string, error) {
	var images []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".jpg", ".jpeg", ".png":
			images = append(images, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	sort.Strings(images)
	return images, nil
}

// classifyAll runs images through p with the given number of workers.
// Results keep the order of images.
func classifyAll(ctx context.Context, p predictor, images []string, metadata []byte, workers int, done func()) []batchResult {
	if workers < 1 {
		workers = 1
	}
	results := make([]batchResult, len(images))
	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = classifyFile(ctx, p, images[i], metadata)
				done()
			}
		}()
	}

	for i := range images {
		if ctx.Err() != nil {
			break
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for i := range results {
		if results[i].File == "" {
			results[i] = batchResult{File: images[i], Error: "cancelled"}
		}
	}
	return results
}

func classifyFile(ctx context.Context, p predictor, path string, metadata []byte) batchResult {
	res := batchResult{File: path}

	image, err := os.ReadFile(path)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if sidecar, err := os.ReadFile(strings.TrimSuffix(path, filepath.Ext(path)) + ".json"); err == nil {
		metadata = sidecar
	}

	pred, err := p.Predict(ctx, image, metadata)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Prediction = &pred
	return res
}

// writeResults emits JSON lines and counts results per label; failures count under "".
func writeResults(w io.Writer, results []batchResult) (map[prediction.Label]int, error) {
	summary := make(map[prediction.Label]int)
	enc := json.NewEncoder(w)
	for _, r := range results {
		if r.Prediction != nil {
			summary[r.Label]++
		} else {
			summary[""]++
		}
		if err := enc.Encode(r); err != nil {
			return nil, err
		}
	}
	return summary, nil
}
