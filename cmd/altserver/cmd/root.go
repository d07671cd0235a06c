package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/appuploader/altserver/anisette"
	"github.com/appuploader/altserver/download"
	"github.com/appuploader/altserver/external"
	"github.com/appuploader/altserver/provision"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "altserver",
	Short:         "Sign and install apps on iOS devices with a free Apple ID",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

func init() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.altserver/config.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "V", false, "verbose output")
	rootCmd.PersistentFlags().String("data-dir", "", "directory for certificates, tokens and the server id")
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))

	setDefaults(viper.GetViper())

	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(certsCmd)
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
}

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()
	v.SetDefault("data_dir", filepath.Join(home, ".altserver"))
	v.SetDefault("anisette.servers", anisette.DefaultServers)
	v.SetDefault("download_url", download.DefaultURL)
	v.SetDefault("attestation_codes", []int(provision.DefaultAttestationCodes))
	v.SetDefault("retry_cooldown", provision.DefaultRetryCooldown)
	v.SetDefault("signer.path", external.DefaultSignerPath)
	v.SetDefault("installer.path", external.DefaultInstallerPath)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		viper.AddConfigPath(filepath.Join(home, ".altserver"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("altserver")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

type config struct {
	DataDir          string
	AnisetteServers  []string
	DownloadURL      string
	AttestationCodes provision.AttestationCodes
	RetryCooldown    time.Duration
	SignerPath       string
	InstallerPath    string
	StoragePassword  string
}

func loadConfig(v *viper.Viper) *config {
	return &config{
		DataDir:          v.GetString("data_dir"),
		AnisetteServers:  v.GetStringSlice("anisette.servers"),
		DownloadURL:      v.GetString("download_url"),
		AttestationCodes: provision.AttestationCodes(v.GetIntSlice("attestation_codes")),
		RetryCooldown:    v.GetDuration("retry_cooldown"),
		SignerPath:       v.GetString("signer.path"),
		InstallerPath:    v.GetString("installer.path"),
		StoragePassword:  v.GetString("storage_password"),
	}
}
