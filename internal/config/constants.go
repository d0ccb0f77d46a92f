package config

// Shared secrets for the two key schemes. The dated scheme rotated the
// secret when it replaced the offline scheme; both values stay deployed
// because keys minted under each must keep verifying.
const (
	DefaultSecret       = "ClickSprite_SecretKey_2024_Advanced_v2"
	DefaultLegacySecret = "ClickSprite_SecretKey_2024_Advanced"
)

// Issuance policy defaults.
const (
	DefaultDailyCap     = 5
	DefaultValidityDays = 30
	DefaultFreeBonus    = 20
	DefaultPaidBonus    = -1 // unlimited
	DefaultLegacyBonus  = 10
)
