package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/beam-cloud/toolshelf/pkg/types"
)

// ImportFile is the yaml layout accepted by toolctl import:
//
//	tools:
//	  - name: Sora
//	    url: https://sora.com
//	    description: Text to video
//	    category: Video
type ImportFile struct {
	Tools []types.ToolFields `yaml:"tools"`
}

// ParseImport decodes and validates an import file. Every record must be
// complete; nothing is imported if any record is invalid.
func ParseImport(data []byte) ([]types.ToolFields, error) {
	var file ImportFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse import file: %w", err)
	}

	for i, f := range file.Tools {
		if err := types.ValidateFields(f); err != nil {
			return nil, fmt.Errorf("tool %d (%q): %w", i+1, f.Name, err)
		}
	}
	return file.Tools, nil
}

type importResult struct {
	Created []string `json:"created"`
	Skipped []string `json:"skipped"`
}

var skipExisting bool

var importCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Add every tool listed in a yaml file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		tools, err := ParseImport(data)
		if err != nil {
			return err
		}

		client := getClient()
		existing := map[string]bool{}
		if skipExisting {
			list, err := client.ListTools(cmd.Context(), "", types.CategoryAll)
			if err != nil {
				return err
			}
			for _, t := range list.Tools {
				existing[t.Url] = true
			}
		}

		result := importResult{Created: []string{}, Skipped: []string{}}
		err = RunSpinnerWithResult(fmt.Sprintf("Importing %d tools...", len(tools)), func() error {
			for _, f := range tools {
				if existing[f.Url] {
					result.Skipped = append(result.Skipped, f.Name)
					continue
				}
				created, err := client.CreateTool(cmd.Context(), f)
				if err != nil {
					return fmt.Errorf("import %q: %w", f.Name, err)
				}
				result.Created = append(result.Created, created.Id)
				existing[f.Url] = true
			}
			return nil
		})
		if err != nil {
			return err
		}

		if PrintJSON(result) {
			return nil
		}
		PrintSuccessf("Imported %d tools", len(result.Created))
		if len(result.Skipped) > 0 {
			PrintWarning(fmt.Sprintf("Skipped %d already in the catalog", len(result.Skipped)))
		}
		return nil
	},
}

func init() {
	importCmd.Flags().BoolVar(&skipExisting, "skip-existing", true, "Skip tools whose URL is already in the catalog")
}
