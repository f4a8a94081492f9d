package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"borrowsim/internal/driver"
	"borrowsim/internal/source"
	"borrowsim/internal/ui"
)

type runOutcome struct {
	results []driver.Result
	err     error
}

func runWithUI(ctx context.Context, title string, fileSet *source.FileSet, sources []driver.Source, opts driver.Options) ([]driver.Result, error) {
	events := make(chan driver.Event, 256)
	outcomeCh := make(chan runOutcome, 1)

	go func() {
		optsCopy := opts
		optsCopy.Progress = driver.ChannelSink{Ch: events}
		res, err := driver.Run(ctx, fileSet, sources, optsCopy)
		outcomeCh <- runOutcome{results: res, err: err}
		close(events)
	}()

	names := make([]string, len(sources))
	for i, src := range sources {
		names[i] = src.String()
	}
	model := ui.NewProgressModel(title, names, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stderr))
	_, uiErr := program.Run()
	// the UI may quit before the run ends; keep the run from blocking on a full channel
	go func() {
		for range events {
		}
	}()
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.results, uiErr
	}
	return outcome.results, outcome.err
}
