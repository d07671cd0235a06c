package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/fullsailor/pkcs7"
	"howett.net/plist"
)

type ProvisioningProfile struct {
	Identifier       string
	UUID             string
	Name             string
	BundleIdentifier string
	TeamIdentifier   string
	ExpirationDate   time.Time
	Entitlements     map[string]any
	// Data is the signed .mobileprovision content.
	Data []byte
}

type profileContent struct {
	UUID           string         `plist:"UUID"`
	Name           string         `plist:"Name"`
	TeamIdentifier []string       `plist:"TeamIdentifier"`
	ExpirationDate time.Time      `plist:"ExpirationDate"`
	Entitlements   map[string]any `plist:"Entitlements"`
}

// ParseProvisioningProfile decodes a signed .mobileprovision document.
func ParseProvisioningProfile(data []byte) (*ProvisioningProfile, error) {
	p7, err := pkcs7.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse PKCS#7 data: %w", err)
	}
	if len(p7.Content) == 0 {
		return nil, fmt.Errorf("no content found in PKCS#7 data")
	}
	var content profileContent
	if _, err := plist.Unmarshal(p7.Content, &content); err != nil {
		return nil, fmt.Errorf("unmarshal provisioning profile plist: %w", err)
	}
	profile := &ProvisioningProfile{
		UUID:           content.UUID,
		Name:           content.Name,
		ExpirationDate: content.ExpirationDate,
		Entitlements:   content.Entitlements,
		Data:           data,
	}
	if len(content.TeamIdentifier) > 0 {
		profile.TeamIdentifier = content.TeamIdentifier[0]
	}
	if appIdentifier, ok := content.Entitlements["application-identifier"].(string); ok {
		profile.BundleIdentifier = appIdentifier
		if i := strings.Index(appIdentifier, "."); i >= 0 {
			profile.BundleIdentifier = appIdentifier[i+1:]
		}
	}
	return profile, nil
}

// AppGroups is the application-groups entitlement list, nil when the entitlement is absent.
func (p *ProvisioningProfile) AppGroups() []any {
	groups, _ := p.Entitlements[EntitlementApplicationGroups].([]any)
	return groups
}
