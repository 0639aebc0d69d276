package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"inkink/apiclient"
	"inkink/generator"
	"inkink/pipeline"
)

func newRetryCommand(ctx *commandContext) *cobra.Command {
	var (
		serverURL string
		fromID    string
		taskID    string
		indices   []int
		aspect    string
	)

	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Retry failed pages through a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if fromID == "" {
				return fmt.Errorf("--from is required")
			}
			store, err := ctx.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()
			rec, err := store.Get(cmd.Context(), fromID)
			if err != nil {
				return err
			}
			if taskID == "" && rec.Images.TaskID != nil {
				taskID = *rec.Images.TaskID
			}
			if taskID == "" {
				return fmt.Errorf("record %s has no task id; pass --task", fromID)
			}
			pages, err := selectPages(rec.Outline.Pages, indices)
			if err != nil {
				return err
			}

			client := apiclient.New(serverURL)
			client.Logger = ctx.ensureLogger(cmd)
			out := cmd.OutOrStdout()
			var finish *pipeline.RetryFinish
			var streamErr error
			apiclient.DrainRetry(client.RetryFailedImages(cmd.Context(), apiclient.RetryRequest{
				TaskID:      taskID,
				Pages:       pages,
				FullOutline: rec.Outline.Raw,
				UserTopic:   rec.Title,
				AspectRatio: aspect,
			}), apiclient.RetryHandlers{
				OnProgress: func(p pipeline.ProgressEvent) { fmt.Fprintln(out, p.Message) },
				OnComplete: func(p pipeline.ProgressEvent) { fmt.Fprintf(out, "page %d done\n", p.Index+1) },
				OnError: func(p pipeline.ProgressEvent) {
					fmt.Fprintf(out, "page %d failed: %s\n", p.Index+1, p.Message)
				},
				OnFinish:      func(f pipeline.RetryFinish) { finish = &f },
				OnStreamError: func(err error) { streamErr = err },
			})
			if streamErr != nil {
				return streamErr
			}
			if finish == nil {
				return fmt.Errorf("retry stream ended without a result")
			}
			fmt.Fprintf(out, "retry finished: %d/%d completed\n", finish.Completed, finish.Total)
			if !finish.Success {
				return fmt.Errorf("%d page(s) still failing", finish.Failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "http://127.0.0.1:12398", "inkink server URL")
	cmd.Flags().StringVar(&fromID, "from", "", "History record the pages belong to")
	cmd.Flags().StringVar(&taskID, "task", "", "Task id (defaults to the record's task id)")
	cmd.Flags().IntSliceVar(&indices, "page", nil, "1-based page number to retry (repeatable, default all)")
	cmd.Flags().StringVar(&aspect, "aspect", "3:4", "Aspect ratio")
	return cmd
}

// selectPages 按 1 起始的页码挑选页面；未指定时返回全部页面。
func selectPages(all []generator.Page, numbers []int) ([]generator.Page, error) {
	if len(numbers) == 0 {
		return all, nil
	}
	out := make([]generator.Page, 0, len(numbers))
	for _, n := range numbers {
		if n < 1 || n > len(all) {
			return nil, fmt.Errorf("page %d out of range 1..%d", n, len(all))
		}
		out = append(out, all[n-1])
	}
	return out, nil
}
