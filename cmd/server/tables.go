package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/dyntable"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/gateway"
)

const (
	tablesCommandUse         = "tables <table>"
	tablesCommandShort       = "Print one page of a backend table"
	flagNamePage             = "page"
	flagNameSearch           = "search"
	flagNameLayout           = "layout"
	flagNameFormat           = "format"
	flagNameExcludeID        = "exclude-id"
	tablesFetchFailedMessage = "fetch table"
)

type tablesOptions struct {
	page       int
	search     string
	layout     string
	format     string
	excludeIDs []int64
}

func (application *ServerApplication) tablesCommand() *cobra.Command {
	options := &tablesOptions{}
	command := &cobra.Command{
		Use:   tablesCommandUse,
		Short: tablesCommandShort,
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			return application.runTables(command, strings.TrimSpace(arguments[0]), options)
		},
	}
	command.Flags().IntVar(&options.page, flagNamePage, 1, "page number")
	command.Flags().StringVar(&options.search, flagNameSearch, "", "search term")
	command.Flags().StringVar(&options.layout, flagNameLayout, string(dyntable.LayoutLandscape), "landscape or portrait")
	command.Flags().StringVar(&options.format, flagNameFormat, dyntable.TerminalFormatTable, "table, md or csv")
	command.Flags().Int64SliceVar(&options.excludeIDs, flagNameExcludeID, []int64{dyntable.DefaultExcludedID}, "row ids to hide")
	return command
}

func (application *ServerApplication) runTables(command *cobra.Command, table string, options *tablesOptions) error {
	backend, backendErr := gateway.New(gateway.Config{
		BaseURL: strings.TrimSpace(application.configurationLoader.GetString(environmentKeyBackendBaseURL)),
	})
	if backendErr != nil {
		return backendErr
	}

	controller, controllerErr := dyntable.NewListController(dyntable.ControllerConfig{
		Table:       table,
		Source:      backend,
		ExcludedIDs: options.excludeIDs,
	})
	if controllerErr != nil {
		return controllerErr
	}

	if fetchErr := controller.SetQuery(command.Context(), options.page, strings.TrimSpace(options.search)); fetchErr != nil {
		color.New(color.FgRed).Fprintf(command.ErrOrStderr(), "%s %s: %s\n", tablesFetchFailedMessage, table, gateway.BackendMessage(fetchErr, fetchErr.Error()))
		return fetchErr
	}

	state := controller.State()
	color.New(color.FgCyan, color.Bold).Fprintln(command.OutOrStdout(), dyntable.FormatLabel(table))
	terminal := dyntable.NewTerminalRenderer(
		dyntable.NewRenderer(strings.TrimSpace(application.configurationLoader.GetString(environmentKeyAssetBaseURL))),
		dyntable.ParseLayout(options.layout),
		options.format,
	)
	if renderErr := terminal.Render(command.OutOrStdout(), state); renderErr != nil {
		return fmt.Errorf("render %s: %w", table, renderErr)
	}
	return nil
}
