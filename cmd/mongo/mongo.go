package mongo

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wal-g/initsync/internal"
	"github.com/wal-g/tracelog"
)

var ShortDescription = "MongoDB initial sync oplog tool"

// These variables are here only to show current version. They are set in makefile during build process
var walgVersion = "devel"
var gitRevision = "devel"
var buildDate = "devel"

var profileStopper internal.ProfileStopper

var cmd = &cobra.Command{
	Use:     "walg-initsync",
	Short:   ShortDescription,
	Version: strings.Join([]string{walgVersion, gitRevision, buildDate, "MongoDB"}, "\t"),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		err := internal.AssertRequiredSettingsSet()
		tracelog.ErrorLogger.FatalOnError(err)
		err = internal.ConfigureAndRunDefaultWebServer()
		tracelog.ErrorLogger.FatalOnError(err)
		profileStopper, err = internal.Profile()
		tracelog.ErrorLogger.FatalOnError(err)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if profileStopper != nil {
			profileStopper.Stop()
		}
	},
}

// Execute runs root command
func Execute() {
	if err := cmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(internal.InitConfig, internal.Configure)

	internal.RequiredSettings[internal.MongoDBUriSetting] = true
	internal.RequiredSettings[internal.SourceURISetting] = true
	cmd.PersistentFlags().StringVar(&internal.CfgFile, "config", "", "config file (default is $HOME/.walg-initsync.yaml)")
	cmd.InitDefaultVersionFlag()
	internal.AddConfigFlags(cmd)
}
