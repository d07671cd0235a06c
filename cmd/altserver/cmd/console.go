package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/99designs/keyring"
	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/appuploader/altserver/model"
	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
)

const keychainServiceName = "altserver"

// consoleNotifier prints notifications and asks for confirmation on alerts.
type consoleNotifier struct {
	out io.Writer
}

func newConsoleNotifier() *consoleNotifier {
	return &consoleNotifier{out: os.Stderr}
}

func (n *consoleNotifier) Notify(title string, message string) {
	color.New(color.FgGreen, color.Bold).Fprint(n.out, title)
	fmt.Fprintln(n.out, " "+message)
}

func (n *consoleNotifier) Alert(ctx context.Context, title string, message string) error {
	color.New(color.FgYellow, color.Bold).Fprintln(n.out, title)
	fmt.Fprintln(n.out, message)
	if ctx.Err() != nil {
		return model.NewError(model.Cancelled)
	}
	proceed := true
	prompt := &survey.Confirm{
		Message: "Continue?",
		Default: true,
	}
	if err := survey.AskOne(prompt, &proceed); err != nil {
		return promptError(err)
	}
	if !proceed {
		return model.NewError(model.Cancelled)
	}
	return nil
}

func promptError(err error) error {
	if err == terminal.InterruptErr {
		return model.NewError(model.Cancelled)
	}
	return err
}

// askVerificationCode reads the two factor code sent to the user's trusted devices.
func askVerificationCode(ctx context.Context) (string, bool) {
	var code string
	prompt := &survey.Input{
		Message: "Please type your verification code:",
	}
	if err := survey.AskOne(prompt, &code, survey.WithValidator(survey.Required)); err != nil {
		if err != terminal.InterruptErr {
			log.Error("read verification code: ", err)
		}
		return "", false
	}
	return code, true
}

func openVault(dataDir string, password string) (keyring.Keyring, error) {
	return keyring.Open(keyring.Config{
		ServiceName:                    keychainServiceName,
		KeychainSynchronizable:         false,
		KeychainAccessibleWhenUnlocked: true,
		KeychainTrustApplication:       true,
		FileDir:                        filepath.Join(dataDir, "vault"),
		FilePasswordFunc: func(msg string) (string, error) {
			if password != "" {
				return password, nil
			}
			prompt := &survey.Password{
				Message: "Enter a password to unlock your credentials vault:",
			}
			if err := survey.AskOne(prompt, &password); err != nil {
				return "", promptError(err)
			}
			return password, nil
		},
	})
}

// applePassword returns the password for appleID from the vault, asking for it and saving it when missing.
func applePassword(vault keyring.Keyring, appleID string) (string, error) {
	if item, err := vault.Get(appleID); err == nil && len(item.Data) > 0 {
		return string(item.Data), nil
	}
	var password string
	prompt := &survey.Password{
		Message: fmt.Sprintf("Please type the password of %s:", appleID),
	}
	if err := survey.AskOne(prompt, &password, survey.WithValidator(survey.Required)); err != nil {
		return "", promptError(err)
	}
	if err := vault.Set(keyring.Item{
		Key:         appleID,
		Data:        []byte(password),
		Label:       "AltServer",
		Description: "apple id password",
	}); err != nil {
		log.Warn("save password to vault: ", err)
	}
	return password, nil
}
