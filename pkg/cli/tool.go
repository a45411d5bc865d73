package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	apiv1 "github.com/beam-cloud/toolshelf/pkg/api/v1"
	"github.com/beam-cloud/toolshelf/pkg/types"
)

var (
	filterSearch   string
	filterCategory string

	toolName        string
	toolURL         string
	toolDescription string
	toolCategory    string
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List catalog tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := getClient().ListTools(cmd.Context(), filterSearch, types.Category(filterCategory))
		if err != nil {
			return err
		}

		if PrintJSON(list) {
			return nil
		}
		PrintHeader("AI Tools")
		PrintTools(list)
		fmt.Println()
		return nil
	},
}

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the categories a tool can have",
	RunE: func(cmd *cobra.Command, args []string) error {
		categories, err := getClient().Categories(cmd.Context())
		if err != nil {
			return err
		}

		if PrintJSON(categories) {
			return nil
		}
		PrintHeader("Categories")
		for _, c := range categories {
			PrintBullet(string(c))
		}
		fmt.Println()
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a tool to the catalog",
	Example: `  toolctl add --name Sora --url https://sora.com \
    --description "Text to video" --category Video`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fields := types.ToolFields{
			Name:        toolName,
			Url:         toolURL,
			Description: toolDescription,
			Category:    toolCategory,
		}
		if err := types.ValidateFields(fields); err != nil {
			return err
		}

		var created apiv1.ToolResponse
		err := RunSpinnerWithResult("Adding tool...", func() error {
			var err error
			created, err = getClient().CreateTool(cmd.Context(), fields)
			return err
		})
		if err != nil {
			return err
		}

		if PrintJSON(created) {
			return nil
		}
		PrintSuccessWithValue("Added "+created.Name, created.Id)
		return nil
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit a tool; unset flags keep their current value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		id := args[0]

		current, err := client.GetTool(cmd.Context(), id)
		if err != nil {
			return err
		}

		fields := types.ToolFields{
			Name:        current.Name,
			Url:         current.Url,
			Description: current.Description,
			Category:    current.Category,
		}
		flags := cmd.Flags()
		if flags.Changed("name") {
			fields.Name = toolName
		}
		if flags.Changed("url") {
			fields.Url = toolURL
		}
		if flags.Changed("description") {
			fields.Description = toolDescription
		}
		if flags.Changed("category") {
			fields.Category = toolCategory
		}
		if err := types.ValidateFields(fields); err != nil {
			return err
		}

		var updated apiv1.ToolResponse
		err = RunSpinnerWithResult("Saving tool...", func() error {
			var err error
			updated, err = client.UpdateTool(cmd.Context(), id, fields)
			return err
		})
		if err != nil {
			return err
		}

		if PrintJSON(updated) {
			return nil
		}
		PrintSuccess("Saved " + updated.Name)
		PrintNewline()
		PrintTool(updated)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Remove a tool from the catalog",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]

		err := RunSpinnerWithResult("Removing tool...", func() error {
			return getClient().DeleteTool(cmd.Context(), id)
		})
		if err != nil {
			return err
		}

		if PrintJSON(map[string]string{"id": id}) {
			return nil
		}
		PrintSuccessWithValue("Removed", id)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream the catalog as it changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if !IsJSONOutput() {
			PrintInfof("Watching %s (Ctrl+C to stop)", CodeStyle.Render(gatewayHTTPAddr))
		}

		return getClient().Watch(ctx, filterSearch, types.Category(filterCategory), func(list apiv1.ToolListResponse) {
			if PrintJSON(list) {
				return
			}
			PrintNewline()
			PrintTools(list)
		})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{listCmd, watchCmd} {
		cmd.Flags().StringVarP(&filterSearch, "search", "s", "", "Only tools whose name or description contains this text")
		cmd.Flags().StringVarP(&filterCategory, "category", "c", string(types.CategoryAll), "Only tools in this category")
	}

	for _, cmd := range []*cobra.Command{addCmd, editCmd} {
		cmd.Flags().StringVar(&toolName, "name", "", "Tool name")
		cmd.Flags().StringVar(&toolURL, "url", "", "Tool URL")
		cmd.Flags().StringVar(&toolDescription, "description", "", "Short description")
		cmd.Flags().StringVar(&toolCategory, "category", "", "Category (see toolctl categories)")
	}
}

