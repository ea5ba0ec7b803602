package main

import (
	"errors"
	"strings"
	"time"

	"tutorcast/internal/api"
	"tutorcast/internal/pipeline"
)

var errNotSignedIn = errors.New("not signed in; run `tutorcast auth login`")

// describeError rewrites an expired-session failure into a sign-in hint;
// everything else passes through.
func describeError(err error) error {
	if err == nil {
		return nil
	}
	if api.IsUnauthorized(err) {
		return errors.New("signed out: session expired; run `tutorcast auth login`")
	}
	return err
}

func formatDisplayTime(value time.Time) string {
	if value.IsZero() {
		return "-"
	}
	return value.Local().Format("2006-01-02 15:04")
}

func parseDisplayTime(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "-"
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return formatDisplayTime(parsed)
		}
	}
	return raw
}

func truncateText(value string, limit int) string {
	value = strings.TrimSpace(value)
	if limit <= 3 || len(value) <= limit {
		return value
	}
	return value[:limit-3] + "..."
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func describeStep(step pipeline.Step) string {
	if step == "" {
		return "-"
	}
	return pipeline.StepLabel(step)
}
