package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/blacktop/go-macho"
	log "github.com/sirupsen/logrus"
	"howett.net/plist"
)

// SelfHostedBundleID identifies the tool's own app and its extensions.
const SelfHostedBundleID = "com.rileytestut.AltStore"

type Application struct {
	BundleIdentifier string
	Name             string
	Version          string
	Path             string
	Entitlements     map[string]any
	Extensions       []*Application
	IsSelfHosted     bool
}

type infoPlist struct {
	BundleIdentifier  string `plist:"CFBundleIdentifier"`
	BundleName        string `plist:"CFBundleName"`
	BundleDisplayName string `plist:"CFBundleDisplayName"`
	ShortVersion      string `plist:"CFBundleShortVersionString"`
	Executable        string `plist:"CFBundleExecutable"`
}

// LoadApplication reads an .app bundle and the .appex bundles under its PlugIns directory.
func LoadApplication(bundlePath string) (*Application, error) {
	app, e := loadBundle(bundlePath)
	if e != nil {
		return nil, e
	}
	plugins, _ := filepath.Glob(filepath.Join(bundlePath, "PlugIns", "*.appex"))
	sort.Strings(plugins)
	for _, p := range plugins {
		ext, e := loadBundle(p)
		if e != nil {
			return nil, e
		}
		app.Extensions = append(app.Extensions, ext)
	}
	return app, nil
}

func loadBundle(bundlePath string) (*Application, error) {
	data, e := os.ReadFile(filepath.Join(bundlePath, "Info.plist"))
	if e != nil {
		return nil, &Error{Kind: MissingInfoPlist, Message: bundlePath}
	}
	var info infoPlist
	if _, e := plist.Unmarshal(data, &info); e != nil || info.BundleIdentifier == "" {
		return nil, &Error{Kind: MissingInfoPlist, Message: bundlePath}
	}
	name := info.BundleDisplayName
	if name == "" {
		name = info.BundleName
	}
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(bundlePath), filepath.Ext(bundlePath))
	}
	app := &Application{
		BundleIdentifier: info.BundleIdentifier,
		Name:             name,
		Version:          info.ShortVersion,
		Path:             bundlePath,
		Entitlements:     map[string]any{},
		IsSelfHosted:     strings.Contains(info.BundleIdentifier, SelfHostedBundleID),
	}
	if info.Executable != "" {
		entitlements, e := readEntitlements(filepath.Join(bundlePath, info.Executable))
		if e != nil {
			return nil, fmt.Errorf("read entitlements of %s: %w", app.BundleIdentifier, e)
		}
		app.Entitlements = entitlements
	}
	return app, nil
}

func readEntitlements(executable string) (map[string]any, error) {
	var m *macho.File
	fat, e := macho.OpenFat(executable)
	if e == nil {
		defer fat.Close()
		if len(fat.Arches) == 0 {
			return map[string]any{}, nil
		}
		m = fat.Arches[0].File
	} else if errors.Is(e, macho.ErrNotFat) {
		m, e = macho.Open(executable)
		if e != nil {
			return nil, e
		}
		defer m.Close()
	} else {
		return nil, e
	}
	cs := m.CodeSignature()
	if cs == nil || len(cs.Entitlements) == 0 {
		log.Debugf("%s carries no entitlements", executable)
		return map[string]any{}, nil
	}
	entitlements := map[string]any{}
	if _, e := plist.Unmarshal([]byte(cs.Entitlements), &entitlements); e != nil {
		return nil, e
	}
	return entitlements, nil
}

// AppGroups returns the application-groups entitlement of the bundle.
func (a *Application) AppGroups() []string {
	raw, _ := a.Entitlements[EntitlementApplicationGroups].([]any)
	groups := make([]string, 0, len(raw))
	for _, g := range raw {
		if s, ok := g.(string); ok {
			groups = append(groups, s)
		}
	}
	return groups
}
