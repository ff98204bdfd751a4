package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"channel-quiz-service/internal/app"
	"channel-quiz-service/internal/config"
	"channel-quiz-service/internal/domain"
	"github.com/spf13/cobra"
)

// NewImportCmd stores a local CSV file as a bank in the configured storage.
func NewImportCmd(configPath *string) *cobra.Command {
	var group, name string
	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import a CSV question bank into the configured storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			res, err := runImport(cmd.Context(), cfg, group, name, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %q into group %s: %d kept, %d dropped of %d rows\n",
				res.Name, group, res.Kept, res.Dropped, res.Rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&group, "group", "", "group (chat) id that owns the bank")
	cmd.Flags().StringVar(&name, "name", "", "bank name (defaults to the file name)")
	_ = cmd.MarkFlagRequired("group")
	return cmd
}

func runImport(ctx context.Context, cfg config.Config, group, name, path string) (app.ImportResult, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return app.ImportResult{}, err
	}

	be, err := openBackends(ctx, cfg)
	if err != nil {
		return app.ImportResult{}, err
	}
	defer be.Close()

	banks := app.NewBankRegistry(be.banks)
	importer := app.NewImporter(app.CallerFlag, nil, banks)
	return importer.ImportText(ctx, app.ImportRequest{
		Caller:   domain.Caller{UserID: "cli", GroupID: group, Admin: true},
		GroupID:  group,
		Name:     name,
		FileName: filepath.Base(path),
	}, string(raw))
}
