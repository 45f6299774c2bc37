// Command pgtranslate scaffolds mapping models from PostgreSQL databases and
// translates CEL filters over them into SQL.
package main

import (
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/spandigital/pgtranslate/internal/cli"
)

var (
	cfg        *cli.Config
	configPath string
	logger     *slog.Logger

	cfgFile string
	verbose int
	quiet   bool
)

// Commands that run without a configuration file.
var configless = []string{"help", "completion", "version"}

var rootCmd = &cobra.Command{
	Use:   "pgtranslate",
	Short: "Translate filters over a PostgreSQL mapping model into SQL",
	Long: `pgtranslate reverse-maps a database into an entity mapping model and
translates filters over its entities into single PostgreSQL statements.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		logger = cli.NewLogger(cmd.ErrOrStderr(), verbose, quiet)
		if slices.Contains(configless, cmd.Name()) {
			return nil
		}
		var err error
		if cfg, configPath, err = cli.LoadConfig(cfgFile); err != nil {
			return cli.Fail(cli.ExitConfig, "loading configuration", err)
		}
		logger.Debug("loaded configuration", slog.String("path", configPath))
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: pgtranslate.yaml found from the working directory up)")
	flags.CountVarP(&verbose, "verbose", "v", "log more; repeat for debug output")
	flags.BoolVarP(&quiet, "quiet", "q", false, "log errors only")

	rootCmd.AddCommand(scaffoldCmd, translateCmd, configCmd, versionCmd)
}

// firstSet is the first non-empty list; flags win over configuration.
func firstSet(lists ...[]string) []string {
	for _, l := range lists {
		if len(l) > 0 {
			return l
		}
	}
	return nil
}
