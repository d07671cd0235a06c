package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/appuploader/altserver/anisette"
	"github.com/appuploader/altserver/download"
	"github.com/appuploader/altserver/external"
	"github.com/appuploader/altserver/model"
	"github.com/appuploader/altserver/provision"
	"github.com/appuploader/altserver/storage"
	"github.com/appuploader/altserver/util"
	"github.com/appuploader/altserver/xcode"
	"github.com/caarlos0/ctrlc"
	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	installCmd.Flags().String("udid", "", "UDID of the target device")
	installCmd.Flags().String("device-name", "", "name to register the device with")
	installCmd.Flags().String("device-type", "iphone", "device family (iphone, ipad, appletv)")
	installCmd.Flags().StringP("apple-id", "u", "", "Apple ID used to sign")
	installCmd.Flags().StringP("password", "p", "", "Apple ID password (read from the vault when empty)")
	installCmd.MarkFlagRequired("udid")
	viper.BindPFlag("apple_id", installCmd.Flags().Lookup("apple-id"))
	viper.BindPFlag("password", installCmd.Flags().Lookup("password"))
}

var installCmd = &cobra.Command{
	Use:   "install [IPA]",
	Short: "Sign an app with your Apple ID and install it, AltStore when no IPA is given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig(viper.GetViper())
		udid, _ := cmd.Flags().GetString("udid")
		deviceName, _ := cmd.Flags().GetString("device-name")
		deviceType, _ := cmd.Flags().GetString("device-type")
		if deviceName == "" {
			deviceName = udid
		}

		appleID := viper.GetString("apple_id")
		if appleID == "" {
			return errors.New("an Apple ID is required (--apple-id or ALTSERVER_APPLE_ID)")
		}
		password := viper.GetString("password")
		if password == "" {
			vault, err := openVault(cfg.DataDir, cfg.StoragePassword)
			if err != nil {
				return fmt.Errorf("failed to open vault: %w", err)
			}
			password, err = applePassword(vault, appleID)
			if err != nil {
				if model.IsKind(err, model.Cancelled) {
					log.Warn("Exiting...")
					return nil
				}
				return err
			}
		}

		serverID, err := storage.ServerID(cfg.DataDir)
		if err != nil {
			log.Warn("persist server id: ", err)
		}
		controller := provision.NewController(provision.Options{
			API:              xcode.NewClient(storage.NewTokenStore(cfg.DataDir, cfg.StoragePassword)),
			Attestation:      anisette.NewServerProvider(cfg.AnisetteServers...),
			Cache:            storage.NewCertificateCache(cfg.DataDir, cfg.StoragePassword),
			Notifier:         newConsoleNotifier(),
			Prompt:           askVerificationCode,
			Signer:           &external.CommandSigner{Path: cfg.SignerPath},
			Installer:        &external.CommandInstaller{Path: cfg.InstallerPath},
			Extractor:        provision.ExtractorFunc(util.UnzipAppBundle),
			Downloader:       download.NewDownloader(cfg.DownloadURL),
			AttestationCodes: cfg.AttestationCodes,
			RetryCooldown:    cfg.RetryCooldown,
			ServerID:         serverID,
		})

		request := provision.Request{
			Device: &model.Device{
				Identifier: udid,
				Name:       deviceName,
				Type:       model.ParseDeviceType(deviceType),
			},
			AppleID:  appleID,
			Password: password,
		}
		if len(args) > 0 {
			request.Path = args[0]
		}

		var app *model.Application
		if err := runInterruptible(context.Background(), ctrlc.Default.Run, func(ctx context.Context) error {
			var err error
			app, err = controller.InstallApplication(ctx, request)
			return err
		}); err != nil {
			if errors.As(err, &ctrlc.ErrorCtrlC{}) {
				log.Warn("Installation cancelled")
				return nil
			}
			return err
		}
		if app == nil {
			log.Warn("Installation cancelled")
			return nil
		}
		fmt.Printf("%s %s (%s)\n", color.GreenString("Installed"), app.Name, app.BundleIdentifier)
		return nil
	},
}

// runInterruptible runs task under interrupt and, when interrupt returns first, cancels task and waits for it to return.
func runInterruptible(ctx context.Context, interrupt func(ctx context.Context, task ctrlc.Task) error, task func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	finished := make(chan struct{})
	var taskErr error
	go func() {
		defer close(finished)
		taskErr = task(ctx)
	}()

	err := interrupt(ctx, func() error {
		<-finished
		return taskErr
	})
	cancel()
	<-finished
	return err
}
