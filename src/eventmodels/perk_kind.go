package eventmodels

import "fmt"

type PerkKind string

const (
	PerkWedge         PerkKind = "wedge"
	PerkVIP           PerkKind = "vip"
	PerkUploadCredit  PerkKind = "upload_credit"
	PerkVaultDonation PerkKind = "vault_donation"
)

func AllPerkKinds() []PerkKind {
	return []PerkKind{PerkWedge, PerkVIP, PerkUploadCredit, PerkVaultDonation}
}

func ParsePerkKind(s string) (PerkKind, error) {
	switch PerkKind(s) {
	case PerkWedge, PerkVIP, PerkUploadCredit, PerkVaultDonation:
		return PerkKind(s), nil
	default:
		return "", fmt.Errorf("ParsePerkKind: unknown perk kind %q", s)
	}
}
