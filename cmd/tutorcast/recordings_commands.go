package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"tutorcast/internal/api"
	"tutorcast/internal/config"
	"tutorcast/internal/pipeline"
)

func newRecordingsCommand(ctx *commandContext) *cobra.Command {
	recordingsCmd := &cobra.Command{
		Use:     "recordings",
		Aliases: []string{"rec"},
		Short:   "Manage tutorial recordings",
	}

	recordingsCmd.AddCommand(newRecordingsListCommand(ctx))
	recordingsCmd.AddCommand(newRecordingsShowCommand(ctx))
	recordingsCmd.AddCommand(newRecordingsUploadCommand(ctx))
	recordingsCmd.AddCommand(newRecordingsProcessCommand(ctx))
	recordingsCmd.AddCommand(newRecordingsDeleteCommand(ctx))
	recordingsCmd.AddCommand(newRecordingsDownloadCommand(ctx))
	recordingsCmd.AddCommand(newRecordingsHistoryCommand(ctx))
	recordingsCmd.AddCommand(newRecordingsWatchCommand(ctx))

	return recordingsCmd
}

func newRecordingsListCommand(ctx *commandContext) *cobra.Command {
	var page int
	var limit int
	var status string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recordings",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if limit <= 0 {
				limit = cfg.Recordings.PageLimit
			}

			result, err := client.ListRecordings(cmd.Context(), api.ListOptions{
				Page:   page,
				Limit:  limit,
				Status: pipeline.Status(strings.TrimSpace(status)),
			})
			if err != nil {
				return describeError(err)
			}

			if store, histErr := ctx.historyStore(); histErr == nil {
				for i := range result.Recordings {
					_ = store.Observe(cmd.Context(), &result.Recordings[i])
				}
			}

			if asJSON {
				return writeJSON(cmd, result)
			}

			out := cmd.OutOrStdout()
			if len(result.Recordings) == 0 {
				fmt.Fprintln(out, "No recordings found")
				return nil
			}

			rows := make([][]string, 0, len(result.Recordings))
			for _, rec := range result.Recordings {
				rows = append(rows, []string{
					rec.ID,
					truncateText(orDash(rec.Title), 40),
					pipeline.StatusLabel(rec.Status),
					describeStep(rec.CurrentStep),
					parseDisplayTime(rec.CreatedAt),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Title", "Status", "Step", "Created"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
			))
			pg := result.Pagination
			if pg.Pages > 1 {
				fmt.Fprintf(out, "Page %d of %d (%d total)\n", pg.Page, pg.Pages, pg.Total)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&limit, "limit", 0, "Recordings per page (defaults from config)")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (uploaded|processing|draft_ready|completed|failed)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newRecordingsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <recording-id>",
		Short: "Show one recording in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			rec, err := client.Recording(cmd.Context(), args[0])
			if err != nil {
				return describeError(err)
			}
			if store, histErr := ctx.historyStore(); histErr == nil {
				_ = store.Observe(cmd.Context(), rec)
			}
			if asJSON {
				return writeJSON(cmd, rec)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(os.Stdout)
			for _, line := range renderSectionHeader("Recording "+rec.ID, colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintf(out, "Title:       %s\n", orDash(rec.Title))
			fmt.Fprintf(out, "Status:      %s\n", pipeline.StatusLabel(rec.Status))
			fmt.Fprintf(out, "Language:    %s\n", orDash(rec.TargetLanguage))
			fmt.Fprintf(out, "Created:     %s\n", parseDisplayTime(rec.CreatedAt))
			fmt.Fprintf(out, "Updated:     %s\n", parseDisplayTime(rec.UpdatedAt))
			if rec.Description != "" {
				fmt.Fprintf(out, "Description: %s\n", rec.Description)
			}
			if rec.ErrorMessage != "" {
				fmt.Fprintf(out, "Error:       %s\n", rec.ErrorMessage)
			}

			fmt.Fprintln(out)
			states := pipeline.ProjectSteps(rec.Status, rec.CurrentStep, "")
			for i, stage := range pipeline.Steps {
				fmt.Fprintln(out, renderStageLine(stage, states[i], colorize))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newRecordingsUploadCommand(ctx *commandContext) *cobra.Command {
	var eventsPath string
	var title string
	var description string

	cmd := &cobra.Command{
		Use:   "upload <video-file>",
		Short: "Upload a captured recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}

			videoPath, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			video, err := os.Open(videoPath)
			if err != nil {
				return fmt.Errorf("open video file: %w", err)
			}
			defer video.Close()

			var interactionEvents []api.InteractionEvent
			if strings.TrimSpace(eventsPath) != "" {
				expanded, err := config.ExpandPath(eventsPath)
				if err != nil {
					return err
				}
				raw, err := os.ReadFile(expanded)
				if err != nil {
					return fmt.Errorf("read events file: %w", err)
				}
				if err := json.Unmarshal(raw, &interactionEvents); err != nil {
					return fmt.Errorf("parse events file: %w", err)
				}
			}

			ack, err := client.UploadRecording(cmd.Context(), api.UploadRequest{
				Video:       video,
				Filename:    filepath.Base(videoPath),
				Events:      interactionEvents,
				Title:       title,
				Description: description,
			})
			if err != nil {
				return describeError(err)
			}

			if store, histErr := ctx.historyStore(); histErr == nil {
				_ = store.RecordUpload(cmd.Context(), ack.RecordingID, title, pipeline.Status(ack.Status))
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Uploaded recording %s (status: %s)\n", ack.RecordingID, ack.Status)
			fmt.Fprintf(out, "Start processing with `tutorcast recordings process %s`\n", ack.RecordingID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&eventsPath, "events", "e", "", "JSON file with captured interaction events")
	cmd.Flags().StringVarP(&title, "title", "t", "", "Recording title")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Recording description")
	return cmd
}

func newRecordingsProcessCommand(ctx *commandContext) *cobra.Command {
	var lang string
	var watch bool

	cmd := &cobra.Command{
		Use:   "process <recording-id>",
		Short: "Start (or re-run) pipeline processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(lang) == "" {
				lang = cfg.Recordings.TargetLanguage
			}

			ack, err := client.StartProcessing(cmd.Context(), args[0], lang)
			if err != nil {
				return describeError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Processing started for %s (language: %s, status: %s)\n",
				args[0], lang, ack.Status)

			if watch {
				return watchRecording(cmd, ctx, args[0])
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&lang, "language", "l", "", "Voiceover language (defaults from config)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Watch pipeline progress after starting")
	return cmd
}

func newRecordingsDeleteCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <recording-id>",
		Short: "Delete a recording and its artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return errors.New("pass --force to confirm deletion")
			}
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			if err := client.DeleteRecording(cmd.Context(), args[0]); err != nil {
				return describeError(err)
			}
			if store, histErr := ctx.historyStore(); histErr == nil {
				_ = store.Forget(cmd.Context(), args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted recording %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Confirm deletion")
	return cmd
}

func newRecordingsDownloadCommand(ctx *commandContext) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "download <recording-id>",
		Short: "Download the final rendered video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}

			target := strings.TrimSpace(outputPath)
			if target == "" {
				target = args[0] + ".mp4"
			}
			expanded, err := config.ExpandPath(target)
			if err != nil {
				return err
			}

			file, err := os.OpenFile(expanded, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
			if err != nil {
				return fmt.Errorf("create output file: %w", err)
			}

			written, err := client.DownloadRecording(cmd.Context(), args[0], file)
			closeErr := file.Close()
			if err != nil {
				_ = os.Remove(expanded)
				return describeError(err)
			}
			if closeErr != nil {
				return fmt.Errorf("close output file: %w", closeErr)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Downloaded %s (%d bytes) to %s\n", args[0], written, expanded)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file (default <recording-id>.mp4)")
	return cmd
}

func newRecordingsHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List locally observed recordings (works offline)",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.historyStore()
			if err != nil {
				return err
			}
			observations, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, observations)
			}

			out := cmd.OutOrStdout()
			if len(observations) == 0 {
				fmt.Fprintln(out, "No local history yet")
				return nil
			}
			rows := make([][]string, 0, len(observations))
			for _, obs := range observations {
				uploaded := ""
				if obs.Uploaded {
					uploaded = "yes"
				}
				rows = append(rows, []string{
					obs.RecordingID,
					truncateText(orDash(obs.Title), 40),
					pipeline.StatusLabel(obs.Status),
					uploaded,
					formatDisplayTime(obs.LastSeen),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Title", "Last Status", "Uploaded Here", "Last Seen"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum rows (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
