package cmd

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"inkink/apiclient"
	"inkink/dataurl"
	"inkink/generator"
	"inkink/history"
	"inkink/pipeline"
)

func newOutlineCommand(ctx *commandContext) *cobra.Command {
	var images []string
	var serverURL string
	var save, asJSON bool

	cmd := &cobra.Command{
		Use:   "outline <topic>",
		Short: "Generate a page outline for a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic := args[0]
			var res apiclient.OutlineResponse
			if serverURL != "" {
				client := apiclient.New(serverURL)
				client.Logger = ctx.ensureLogger(cmd)
				out, err := client.GenerateOutlineFromFiles(cmd.Context(), topic, images)
				if err != nil {
					return err
				}
				res = out
			} else {
				adapter, err := ctx.newAdapter()
				if err != nil {
					return err
				}
				refs, err := dataurl.FromFiles(images)
				if err != nil {
					return err
				}
				out, err := adapter.GenerateOutline(cmd.Context(), generator.OutlineRequest{Topic: topic, Images: refs})
				if err != nil {
					return err
				}
				res = apiclient.OutlineResponse{
					Success:   true,
					Outline:   out.Outline,
					Pages:     generator.BuildPages(out.Outline),
					HasImages: out.HasImages,
					Provider:  out.Provider,
					Model:     out.Model,
				}
			}

			if save {
				store, err := ctx.openHistory()
				if err != nil {
					return err
				}
				defer store.Close()
				id, err := store.Create(cmd.Context(), topic, history.Outline{Raw: res.Outline, Pages: res.Pages}, "")
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "saved history record %s\n", id)
			}

			if asJSON {
				return writeJSONOutput(cmd.OutOrStdout(), res)
			}
			for _, p := range res.Pages {
				fmt.Fprintf(cmd.OutOrStdout(), "%2d [%s] %s\n", p.Index+1, p.Type, p.Content)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&images, "image", nil, "Reference image file (repeatable)")
	cmd.Flags().StringVar(&serverURL, "server", "", "Call a running inkink server instead of the provider directly")
	cmd.Flags().BoolVar(&save, "save", false, "Store the outline as a history record")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func newImagesCommand(ctx *commandContext) *cobra.Command {
	var (
		fromID      string
		outlineFile string
		topic       string
		aspect      string
		outDir      string
		serverURL   string
		refs        []string
	)

	cmd := &cobra.Command{
		Use:   "images",
		Short: "Generate one image per outline page",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.ensureLogger(cmd)

			var store *history.Store
			batch := pipeline.Batch{UserTopic: topic, AspectRatio: aspect, ReferenceFiles: refs}
			switch {
			case fromID != "":
				if store, err = ctx.openHistory(); err != nil {
					return err
				}
				defer store.Close()
				rec, err := store.Get(cmd.Context(), fromID)
				if err != nil {
					return err
				}
				batch.Pages = rec.Outline.Pages
				batch.FullOutline = rec.Outline.Raw
				if batch.UserTopic == "" {
					batch.UserTopic = rec.Title
				}
				if rec.Images.TaskID != nil {
					batch.TaskID = *rec.Images.TaskID
				}
			case outlineFile != "":
				raw, err := os.ReadFile(outlineFile)
				if err != nil {
					return fmt.Errorf("read outline: %w", err)
				}
				batch.FullOutline = string(raw)
				batch.Pages = generator.BuildPages(batch.FullOutline)
			default:
				return fmt.Errorf("either --from or --outline is required")
			}
			if len(batch.Pages) == 0 {
				return fmt.Errorf("outline has no pages")
			}

			if outDir != "" {
				if err := os.MkdirAll(outDir, 0o755); err != nil {
					return fmt.Errorf("create output dir: %w", err)
				}
			}
			if store != nil {
				if _, err := store.Update(cmd.Context(), fromID, history.Patch{Status: ptr(history.StatusGenerating)}); err != nil {
					return err
				}
			}

			interval := time.Duration(cfg.Pipeline.RateIntervalMS) * time.Millisecond
			var events <-chan pipeline.Event
			if serverURL != "" {
				client := apiclient.New(serverURL)
				client.Logger = logger
				client.Interval = interval
				events = client.GenerateImages(cmd.Context(), batch)
			} else {
				adapter, err := ctx.newAdapter()
				if err != nil {
					return err
				}
				p, err := pipeline.New(adapter, pipeline.WithInterval(interval), pipeline.WithLogger(logger))
				if err != nil {
					return err
				}
				events = p.Run(cmd.Context(), batch)
			}

			out := cmd.OutOrStdout()
			var result *pipeline.FinishEvent
			var streamErr error
			pipeline.Drain(events, pipeline.Handlers{
				OnProgress: func(p pipeline.ProgressEvent) {
					switch p.Status {
					case pipeline.StatusGenerating:
						fmt.Fprintf(out, "[%d/%d] page %d generating\n", p.Current, p.Total, p.Index+1)
					case pipeline.StatusDone:
						if outDir != "" {
							if err := writeImage(outDir, p.Index, p.ImageURL); err != nil {
								logger.Warn("write image failed", "index", p.Index, "error", err)
							}
						}
						fmt.Fprintf(out, "page %d done\n", p.Index+1)
					case pipeline.StatusError:
						fmt.Fprintf(out, "page %d failed: %s\n", p.Index+1, p.Message)
					}
				},
				OnFinish:      func(f pipeline.FinishEvent) { result = &f },
				OnStreamError: func(err error) { streamErr = err },
			})
			if streamErr == nil && result == nil {
				streamErr = fmt.Errorf("image generation ended without a result")
			}
			if streamErr != nil {
				if store != nil {
					if _, err := store.Update(cmd.Context(), fromID, history.Patch{Status: ptr(history.StatusError)}); err != nil {
						logger.Warn("mark history record failed", "id", fromID, "error", err)
					}
				}
				return streamErr
			}
			fmt.Fprintf(out, "task %s: %d generated, %d failed\n", result.TaskID, len(result.Images), len(result.Failed))

			if store != nil {
				patch := history.Patch{
					Images: &history.Images{TaskID: &result.TaskID, Generated: result.Images},
					Status: ptr(batchStatus(len(result.Images), len(result.Failed))),
				}
				if len(result.Images) > 0 {
					patch.Thumbnail = &result.Images[0]
				}
				if _, err := store.Update(cmd.Context(), fromID, patch); err != nil {
					return err
				}
			}
			if len(result.Failed) > 0 {
				return fmt.Errorf("%d page(s) failed; retry with `inkink retry --task %s`", len(result.Failed), result.TaskID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&fromID, "from", "", "History record whose outline to illustrate")
	cmd.Flags().StringVar(&outlineFile, "outline", "", "Outline text file, one page per line")
	cmd.Flags().StringVar(&topic, "topic", "", "User topic passed to the image prompt")
	cmd.Flags().StringVar(&aspect, "aspect", "3:4", "Aspect ratio (1:1, 3:4, 16:9)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Directory to write page images into")
	cmd.Flags().StringVar(&serverURL, "server", "", "Call a running inkink server instead of the provider directly")
	cmd.Flags().StringSliceVar(&refs, "image", nil, "Reference image file (repeatable)")
	return cmd
}

func batchStatus(generated, failed int) string {
	switch {
	case failed == 0:
		return history.StatusCompleted
	case generated == 0:
		return history.StatusError
	default:
		return history.StatusPartial
	}
}

func writeImage(dir string, index int, url string) error {
	mimeType, payload, err := dataurl.Parse(url)
	if err != nil {
		return err
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	ext := ".png"
	if strings.HasSuffix(mimeType, "jpeg") {
		ext = ".jpg"
	} else if strings.HasSuffix(mimeType, "webp") {
		ext = ".webp"
	}
	return os.WriteFile(filepath.Join(dir, fmt.Sprintf("page-%02d%s", index+1, ext)), data, 0o644)
}

func writeJSONOutput(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func ptr[T any](v T) *T { return &v }
