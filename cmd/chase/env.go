package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	globalPrefix       = "janus"
	errorMessagePrefix = "error mapping environment variables to command flags"
)

// checkEnvironmentVariables sets every flag the user did not pass from
// JANUS_<COMMAND>_<FLAG>, e.g. JANUS_RUN_MAX_ROUNDS for run --max-rounds.
// Flags of the root command read JANUS_<FLAG>.
func checkEnvironmentVariables(command *cobra.Command) error {
	var errs []string
	v := viper.New()
	v.AutomaticEnv()
	if !command.HasParent() {
		v.SetEnvPrefix(globalPrefix)
	} else {
		v.SetEnvPrefix(fmt.Sprintf("%s_%s", globalPrefix, command.Name()))
	}
	command.Flags().VisitAll(func(f *pflag.Flag) {
		configName := strings.ReplaceAll(f.Name, "-", "_")
		if !f.Changed && v.IsSet(configName) {
			val := v.Get(configName)
			if err := command.Flags().Set(f.Name, fmt.Sprintf("%v", val)); err != nil {
				errs = append(errs, err.Error())
			}
		}
	})

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s: %s", errorMessagePrefix, strings.Join(errs, "; "))
}
