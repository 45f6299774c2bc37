package main

import (
	"cmp"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spandigital/pgtranslate"
	"github.com/spandigital/pgtranslate/celfilter"
	"github.com/spandigital/pgtranslate/internal/cli"
	"github.com/spandigital/pgtranslate/model"
	"github.com/spandigital/pgtranslate/query"
)

var (
	translateModel    string
	translateEntity   string
	translateVariable string
)

var translateCmd = &cobra.Command{
	Use:   "translate <filter>",
	Short: "Translate a CEL filter over an entity into SQL",
	Long: `Compile a CEL filter against an entity of a mapping model and print the
SQL statement selecting the matching entities.

Identifiers other than the entity variable become named parameters.`,
	Example: `  pgtranslate translate --model model.yaml --entity Animal --var a \
    'a.IsFlightless && a.Name.startsWith("K")'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := cfg.Registry()
		if err != nil {
			return cli.Fail(cli.ExitConfig, "building type registry", err)
		}
		path := cmp.Or(translateModel, cfg.Translate.Model)
		m, err := model.LoadFile(path, reg)
		if err != nil {
			return cli.Fail(cli.ExitModel, "loading model", err)
		}

		entity := cmp.Or(translateEntity, cfg.Translate.Entity)
		if entity == "" {
			return cli.Fail(cli.ExitConfig, "no entity", fmt.Errorf("set --entity or translate.entity"))
		}
		variable := cmp.Or(translateVariable, cfg.Translate.Variable)
		env, err := celfilter.NewEnv(m, entity, variable)
		if err != nil {
			return cli.Fail(cli.ExitTranslate, "declaring filter environment", err)
		}
		pred, err := celfilter.Filter(env, variable, args[0])
		if err != nil {
			return cli.Fail(cli.ExitTranslate, "compiling filter", err)
		}

		st, err := pgtranslate.New(m,
			pgtranslate.WithLogger(logger),
			pgtranslate.WithTracking(cfg.Translate.Tracking),
			pgtranslate.WithCache(cfg.Translate.CacheSize),
		).Translate(query.From(entity).Where(pred))
		if err != nil {
			return cli.Fail(cli.ExitTranslate, "translating filter", err)
		}

		w := cmd.OutOrStdout()
		for _, p := range st.Params {
			if p.Mapping != nil {
				fmt.Fprintf(w, "-- @%s %s\n", p.Name, p.Mapping.StoreType)
			}
		}
		_, err = fmt.Fprintln(w, st.SQL)
		return err
	},
}

func init() {
	translateCmd.Flags().StringVarP(&translateModel, "model", "m", "", "model file (default: translate.model)")
	translateCmd.Flags().StringVarP(&translateEntity, "entity", "e", "", "entity to filter")
	translateCmd.Flags().StringVar(&translateVariable, "var", "", "name of the entity variable in the filter")
}
