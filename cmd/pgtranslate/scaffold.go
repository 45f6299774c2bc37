package main

import (
	"cmp"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spandigital/pgtranslate/internal/cli"
	"github.com/spandigital/pgtranslate/model"
	"github.com/spandigital/pgtranslate/pg"
)

var (
	scaffoldSchemas []string
	scaffoldTables  []string
	scaffoldOutput  string
)

var scaffoldCmd = &cobra.Command{
	Use:   "scaffold",
	Short: "Generate a mapping model from a live database",
	Long: `Read the tables of a database and print a mapping model for them.

Tables without a key and columns of unmapped types are left out and
reported as warnings.`,
	Example: `  # Scaffold every user table
  pgtranslate scaffold

  # Scaffold one schema and a qualified table into a file
  pgtranslate scaffold --schema sales --table '"db.2"."Tab.le"' -o model.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn, err := cfg.DSN()
		if err != nil {
			return cli.Fail(cli.ExitConfig, "resolving database", err)
		}
		reg, err := cfg.Registry()
		if err != nil {
			return cli.Fail(cli.ExitConfig, "building type registry", err)
		}

		ctx := cmd.Context()
		catalog, err := pg.NewCatalog(ctx, dsn, logger)
		if err != nil {
			return cli.Fail(cli.ExitDatabase, "connecting to database", err)
		}
		defer catalog.Close()

		f := pg.ParseFilter(
			firstSet(scaffoldSchemas, cfg.Scaffold.Schemas),
			firstSet(scaffoldTables, cfg.Scaffold.Tables),
		)
		res, err := pg.NewScaffolder(catalog, pg.WithLogger(logger), pg.WithRegistry(reg)).Scaffold(ctx, f)
		if err != nil {
			return cli.Fail(cli.ExitGeneral, "scaffolding", pg.ClassifyError(err))
		}

		out, err := model.Marshal(res.Model)
		if err != nil {
			return cli.Fail(cli.ExitGeneral, "writing model", err)
		}
		if path := cmp.Or(scaffoldOutput, cfg.Scaffold.Output); path != "" {
			if err := os.WriteFile(path, out, 0o644); err != nil {
				return cli.Fail(cli.ExitGeneral, "writing model", err)
			}
			logger.Info("wrote model", "path", path, "entities", len(res.Model.Entities()))
			return nil
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), string(out))
		return err
	},
}

func init() {
	scaffoldCmd.Flags().StringSliceVar(&scaffoldSchemas, "schema", nil, "schemas to include (repeatable)")
	scaffoldCmd.Flags().StringSliceVar(&scaffoldTables, "table", nil, "tables to include, optionally schema-qualified (repeatable)")
	scaffoldCmd.Flags().StringVarP(&scaffoldOutput, "output", "o", "", "write the model to a file instead of stdout")
}
