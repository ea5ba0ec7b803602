package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"tutorcast/internal/pipeline"
	"tutorcast/internal/tracker"
)

func newRecordingsWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <recording-id>",
		Short: "Watch pipeline progress live",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return watchRecording(cmd, ctx, args[0])
		},
	}
}

// watchRecording follows one recording until the pipeline reaches a
// terminal state or the user interrupts. Pipeline failures are rendered
// inline, not returned as command errors.
func watchRecording(cmd *cobra.Command, cmdCtx *commandContext, recordingID string) error {
	client, err := cmdCtx.apiClient()
	if err != nil {
		return err
	}
	eventsClient, err := cmdCtx.eventsClient()
	if err != nil {
		return err
	}

	watchCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	changed := make(chan struct{}, 1)
	tr := tracker.New(recordingID, client, eventsClient,
		tracker.WithLogger(cmdCtx.ensureLogger()),
		tracker.WithOnChange(func(tracker.State) {
			select {
			case changed <- struct{}{}:
			default:
			}
		}))
	defer tr.Close()

	if err := tr.Start(watchCtx); err != nil {
		return err
	}
	if state := tr.State(); state.Err != "" && state.Recording == nil {
		return describeError(fmt.Errorf("%s", state.Err))
	}

	out := cmd.OutOrStdout()
	colorize := shouldColorize(os.Stdout)
	printed := 0

	render := func(state tracker.State) {
		if colorize && printed > 0 {
			// overwrite the previous block in place
			fmt.Fprintf(out, "\x1b[%dA", printed)
		}
		printed = renderWatchBlock(out, recordingID, state, colorize)
	}

	state := tr.State()
	render(state)
	if done, err := watchFinished(state); done {
		printWatchOutcome(out, state)
		return err
	}

	for {
		select {
		case <-watchCtx.Done():
			fmt.Fprintln(out, "Stopped watching")
			return nil
		case <-changed:
			state = tr.State()
			render(state)
			if done, err := watchFinished(state); done {
				printWatchOutcome(out, state)
				return err
			}
		}
	}
}

func renderWatchBlock(out io.Writer, recordingID string, state tracker.State, colorize bool) int {
	lines := make([]string, 0, len(pipeline.Steps)+4)

	title := recordingID
	if state.Recording != nil && strings.TrimSpace(state.Recording.Title) != "" {
		title = state.Recording.Title
	}
	lines = append(lines, renderSectionHeader("Watching "+title, colorize)...)

	states := state.StageStates()
	for i, stage := range pipeline.Steps {
		lines = append(lines, renderStageLine(stage, states[i], colorize))
	}

	switch {
	case state.ProcessingError != "":
		lines = append(lines, "Pipeline failed: "+state.ProcessingError)
	case state.Err != "":
		lines = append(lines, "Fetch error: "+state.Err)
	case state.Loading:
		lines = append(lines, "Loading...")
	default:
		lines = append(lines, "")
	}

	for _, line := range lines {
		// clear to end of line so shorter redraws leave no residue
		if colorize {
			fmt.Fprintf(out, "%s\x1b[K\n", line)
		} else {
			fmt.Fprintln(out, line)
		}
	}
	return len(lines)
}

func printWatchOutcome(out io.Writer, state tracker.State) {
	if state.Recording == nil {
		return
	}
	switch state.Recording.Status {
	case pipeline.StatusCompleted:
		fmt.Fprintf(out, "Pipeline complete; download with `tutorcast recordings download %s`\n", state.Recording.ID)
	case pipeline.StatusDraftReady:
		fmt.Fprintf(out, "Draft ready; render the final video with `tutorcast recordings process %s`\n", state.Recording.ID)
	case pipeline.StatusFailed:
		if state.Recording.ErrorMessage != "" {
			fmt.Fprintf(out, "Pipeline failed: %s\n", state.Recording.ErrorMessage)
		}
	}
}

// watchFinished reports whether the watch loop should exit, with the error
// to return. Reaching a failed pipeline is a rendered outcome, not a
// command failure.
func watchFinished(state tracker.State) (bool, error) {
	if state.Recording == nil {
		return false, nil
	}
	switch state.Recording.Status {
	case pipeline.StatusCompleted, pipeline.StatusFailed, pipeline.StatusDraftReady:
		return true, nil
	default:
		return false, nil
	}
}
