package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"borrowsim/internal/scenarios"
	"borrowsim/internal/script"
)

var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "List and export the built-in scenarios",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return scenariosListCmd.RunE(cmd, args)
	},
}

var scenariosListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the built-in scenarios in chapter order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := cmd.Flags().GetString("format")
		if err != nil {
			return fmt.Errorf("failed to get format flag: %w", err)
		}
		match, err := cmd.Flags().GetString("match")
		if err != nil {
			return fmt.Errorf("failed to get match flag: %w", err)
		}
		infos, err := scenarios.List()
		if err != nil {
			return err
		}
		if match != "" {
			keep := make(map[string]bool)
			for _, name := range scenarios.Match(match) {
				keep[name] = true
			}
			filtered := infos[:0]
			for _, info := range infos {
				if keep[info.Name] {
					filtered = append(filtered, info)
				}
			}
			infos = filtered
		}
		switch strings.ToLower(format) {
		case "text":
			return writeScenarioTable(cmd.OutOrStdout(), infos)
		case "json":
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(infos)
		default:
			return fmt.Errorf("unsupported format %q (must be text or json)", format)
		}
	},
}

var scenariosShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Print a built-in scenario as a script file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		formatName, err := cmd.Flags().GetString("format")
		if err != nil {
			return fmt.Errorf("failed to get format flag: %w", err)
		}
		format, err := script.ParseFormat(formatName)
		if err != nil {
			return err
		}
		s, err := scenarios.Get(args[0])
		if err != nil {
			return err
		}
		return script.Encode(cmd.OutOrStdout(), format, s)
	},
}

func init() {
	for _, c := range []*cobra.Command{scenariosCmd, scenariosListCmd} {
		c.Flags().String("format", "text", "output format (text|json)")
		c.Flags().String("match", "", "only list scenarios whose name contains this text")
	}
	scenariosShowCmd.Flags().String("format", "toml", "output format (toml|yaml|json)")
	scenariosCmd.AddCommand(scenariosListCmd)
	scenariosCmd.AddCommand(scenariosShowCmd)
}

func writeScenarioTable(w io.Writer, infos []scenarios.Info) error {
	nameWidth := runewidth.StringWidth("name")
	for _, info := range infos {
		nameWidth = max(nameWidth, runewidth.StringWidth(info.Name))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %4s  %8s  %s\n", runewidth.FillRight("name", nameWidth), "ops", "expected", "title")
	for _, info := range infos {
		fmt.Fprintf(&b, "%s  %4d  %8d  %s\n", runewidth.FillRight(info.Name, nameWidth), info.Ops, info.Expected, info.Title)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
