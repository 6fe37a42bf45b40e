package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/Iron-Ham/questline/internal/config"
	"github.com/Iron-Ham/questline/internal/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "questline",
	Short: "Quest orchestration engine for Claude workers",
	Long: `Questline runs a quest, a dependency graph of steps, by dispatching
each ready step to a Claude worker process. A bounded pool of slots limits
how many workers run at once, and the structured signal each worker sends
back decides what happens to its step next.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		printError(rootCmd.ErrOrStderr(), err)
	}
	return err
}

// printError reports a failed command. Errors built by the errors package
// carry a message meant for users and are styled by severity; anything else
// is printed as its raw chain.
func printError(w io.Writer, err error) {
	msg := "Error: " + err.Error()
	if !errors.IsUserFacing(err) {
		fmt.Fprintln(w, msg)
		return
	}
	style := errStyle
	if errors.GetSeverity(err) <= errors.SeverityWarning {
		style = warnStyle
	}
	fmt.Fprintln(w, style.Render(msg))
	if errors.IsRetryable(err) {
		fmt.Fprintln(w, mutedStyle.Render("This may succeed if you run the command again."))
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/questline/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("QUESTLINE")
	// QUESTLINE_ORCHESTRATION_SLOT_COUNT for orchestration.slot_count
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	_ = viper.ReadInConfig()
}
