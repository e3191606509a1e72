package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/starford/quarry/internal/store"
)

// ErrCheckFailed is returned by Check when a collection could not be loaded
// or holds invalid items.
var ErrCheckFailed = errors.New("check failed")

// Check scans every configured collection once and writes a validation
// report to w.
func Check(ctx context.Context, w io.Writer, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config
	logger := newLogger(app.logOutput, cfg.App.LogLevel)

	reg := store.NewRegistry(logger)
	defer reg.Close()
	_ = reg.Apply(ctx, cfg.Definitions())

	failed := report(w, reg.List())
	if failed > 0 {
		return fmt.Errorf("%w: %d collection(s) with problems", ErrCheckFailed, failed)
	}
	return nil
}

// report writes one block per collection and returns how many collections
// were unavailable or had invalid items.
func report(w io.Writer, statuses []store.Status) int {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	failed := 0
	for _, st := range statuses {
		if st.Err != nil {
			failed++
			fmt.Fprintf(tw, "%s\tUNAVAILABLE\t%s\n", st.Name, st.Err)
			continue
		}
		snap := st.Store.Snapshot()
		invalid := snap.Invalid()
		state := "OK"
		if len(invalid) > 0 {
			failed++
			state = "INVALID"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d valid, %d invalid\n", st.Name, state, snap.Len(), len(invalid))
		for _, it := range invalid {
			for _, ve := range it.Validation.Errors {
				field := ve.Field
				if field == "" {
					field = "-"
				}
				fmt.Fprintf(tw, "  %s\t%s\t%s: %s\n", it.Path, field, ve.Kind, ve.Message)
			}
		}
		for _, it := range snap.Items() {
			for _, ve := range it.Validation.Warnings {
				fmt.Fprintf(tw, "  %s\t%s\twarning %s: %s\n", it.Path, ve.Field, ve.Kind, ve.Message)
			}
		}
	}
	if len(statuses) == 0 {
		fmt.Fprintln(tw, "no collections configured")
	}
	return failed
}
