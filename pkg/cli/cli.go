package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// Build information (injected at compile time via ldflags)
var (
	Version = "dev"
)

const localGatewayHTTP = "http://localhost:1994"

var (
	gatewayHTTPAddr string
	jsonOutput      bool
)

// Custom help template with styled output
var helpTemplate = `{{with .Long}}{{. | trim}}

{{end}}{{if .HasAvailableSubCommands}}` + `{{.CommandPath}}` + ` ` + `<command>` + `

{{end}}{{if .HasAvailableSubCommands}}Commands:
{{range .Commands}}{{if .IsAvailableCommand}}  {{rpad .Name .NamePadding }}  {{.Short}}
{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}
Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}
`

var rootCmd = &cobra.Command{
	Use:   "toolctl",
	Short: "Manage the shared AI tools catalog",
	Long: lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true).Render("toolctl") + ` - Manage the shared AI tools catalog

List, add, edit and remove catalog entries on a running toolshelf gateway.
Changes show up live for everyone browsing the catalog.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		SetJSONOutput(jsonOutput)
	},
}

func init() {
	// Set custom templates
	rootCmd.SetHelpTemplate(helpTemplate)

	// Version template
	rootCmd.SetVersionTemplate(fmt.Sprintf("  %s version %s\n", BrandStyle.Render("toolctl"), Version))

	rootCmd.PersistentFlags().StringVar(&gatewayHTTPAddr, "gateway", getEnv("TOOLSHELF_GATEWAY", localGatewayHTTP), "Gateway HTTP address")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(categoriesCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(importCmd)
}

// Execute runs the CLI
func Execute() error {
	err := rootCmd.Execute()
	if err == nil {
		return nil
	}
	if !PrintJSON(map[string]string{"error": FormatError(err)}) {
		PrintFormattedError("Command failed", err)
	}
	return err
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getClient() *Client {
	return NewClient(gatewayHTTPAddr)
}
