package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/appuploader/altserver/model"
	"github.com/appuploader/altserver/storage"
	"github.com/appuploader/altserver/util"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	certsCmd.Flags().String("machine-id", "", "machine identifier used to decrypt the cached certificates")
	certsCmd.Flags().Bool("ocsp", false, "check the revocation status of decrypted certificates")
}

var certsCmd = &cobra.Command{
	Use:   "certs",
	Short: "List cached development certificates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig(viper.GetViper())
		machineID, _ := cmd.Flags().GetString("machine-id")
		checkOCSP, _ := cmd.Flags().GetBool("ocsp")
		cache := storage.NewCertificateCache(cfg.DataDir, cfg.StoragePassword)
		return listCertificates(os.Stdout, cache, machineID, checkOCSP)
	},
}

func listCertificates(out io.Writer, cache *storage.CertificateCache, machineID string, checkOCSP bool) error {
	teams, err := cache.Teams()
	if err != nil {
		return err
	}
	if len(teams) == 0 {
		fmt.Fprintln(out, "no cached certificates")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TEAM\tSIZE\tSERIAL\tNAME\tSTATUS")
	for _, team := range teams {
		blob, err := cache.Load(team)
		if err != nil {
			fmt.Fprintf(w, "%s\t-\t-\t-\t%s\n", team, color.RedString(err.Error()))
			continue
		}
		serial, name, status := "-", "-", "encrypted"
		if machineID != "" {
			serial, name, status = describeCertificate(blob, machineID, checkOCSP)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", team, humanize.Bytes(uint64(len(blob))), serial, name, status)
	}
	return w.Flush()
}

func describeCertificate(blob []byte, machineID string, checkOCSP bool) (serial string, name string, status string) {
	cert, err := model.CertificateFromP12(blob, machineID)
	if err != nil {
		return "-", "-", color.RedString("cannot decrypt")
	}
	status = "ok"
	if !checkOCSP {
		return cert.SerialNumber, cert.Name, status
	}
	x509Cert, err := util.ParseCertificate(cert.Data)
	if err != nil {
		return cert.SerialNumber, cert.Name, color.RedString(err.Error())
	}
	response, err := util.OCSPStatusCheck(x509Cert)
	if err != nil {
		return cert.SerialNumber, cert.Name, color.YellowString("ocsp: " + err.Error())
	}
	return cert.SerialNumber, cert.Name, util.OCSPStatusName(response.Status)
}
