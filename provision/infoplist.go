package provision

import (
	"os"
	"path/filepath"

	"github.com/appuploader/altserver/model"
	"howett.net/plist"
)

const certificateFileName = "ALTCertificate.p12"

// updateInfoPlist lets edit change the bundle's Info.plist and writes it back in its original format.
func updateInfoPlist(bundlePath string, edit func(info map[string]any)) error {
	path := filepath.Join(bundlePath, "Info.plist")
	data, err := os.ReadFile(path)
	if err != nil {
		return &model.Error{Kind: model.MissingInfoPlist, Message: bundlePath}
	}
	info := map[string]any{}
	format, err := plist.Unmarshal(data, &info)
	if err != nil {
		return &model.Error{Kind: model.MissingInfoPlist, Message: bundlePath}
	}
	edit(info)
	if format == plist.OpenStepFormat || format == plist.GNUStepFormat {
		format = plist.XMLFormat
	}
	out, err := plist.Marshal(info, format)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0644)
}

func bundleValues(app *model.Application, profile *model.ProvisioningProfile) map[string]any {
	values := map[string]any{
		"CFBundleIdentifier":  profile.BundleIdentifier,
		"ALTBundleIdentifier": app.BundleIdentifier,
	}
	if groups := profile.AppGroups(); groups != nil {
		values["ALTAppGroups"] = groups
	}
	return values
}

// appendURLScheme registers the altstore-<bundle id> url scheme used to open the app.
func appendURLScheme(info map[string]any, bundleID string) {
	urlTypes, _ := info["CFBundleURLTypes"].([]any)
	info["CFBundleURLTypes"] = append(urlTypes, map[string]any{
		"CFBundleTypeRole":   "Editor",
		"CFBundleURLName":    bundleID,
		"CFBundleURLSchemes": []any{"altstore-" + bundleID},
	})
}
