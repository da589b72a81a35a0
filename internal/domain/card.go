package domain

// CardNetwork identifies a card scheme a transaction can be routed over.
type CardNetwork string

const (
	NetworkVisa       CardNetwork = "visa"
	NetworkMastercard CardNetwork = "mastercard"
	NetworkAmex       CardNetwork = "amex"
	NetworkDiscover   CardNetwork = "discover"
	NetworkInterlink  CardNetwork = "interlink"
	NetworkMaestro    CardNetwork = "maestro"
	NetworkPulse      CardNetwork = "pulse"
	NetworkNyce       CardNetwork = "nyce"
	NetworkStar       CardNetwork = "star"
	NetworkAccel      CardNetwork = "accel"
)

// IsUSLocal reports whether the network is a US local (PIN-debit) network.
// Routing a PIN network through a connector requires an explicit allowlist
// opt-in, and a rebuilt debit-routing list must retain at least one of these.
func (n CardNetwork) IsUSLocal() bool {
	switch n {
	case NetworkInterlink, NetworkMaestro, NetworkPulse, NetworkNyce, NetworkStar, NetworkAccel:
		return true
	}
	return false
}

// IsSignature reports whether the network is a global signature-debit scheme,
// routable through any connector without an allowlist entry.
func (n CardNetwork) IsSignature() bool {
	return !n.IsUSLocal()
}

// PaymentMethodKind distinguishes the payment instrument carried on an attempt.
type PaymentMethodKind string

const (
	MethodCard     PaymentMethodKind = "card"
	MethodApplePay PaymentMethodKind = "apple_pay"
)

// CardType distinguishes debit from credit instruments.
type CardType string

const (
	CardTypeDebit  CardType = "debit"
	CardTypeCredit CardType = "credit"
)

// CoBadgedCardData is stored metadata about the networks co-badged onto a
// saved card, captured when the card was first vaulted.
type CoBadgedCardData struct {
	CoBadgedNetworks []CardNetwork `json:"co_badged_networks"`
	IssuerCountry    string        `json:"issuer_country"`
	IsRegulated      bool          `json:"is_regulated"`
}

// CardData is the raw card detail on a live confirmation request. Only the
// extended BIN ever leaves this struct; the full number is never logged.
type CardData struct {
	Number      string            `json:"number"`
	CardType    CardType          `json:"card_type"`
	CoBadged    *CoBadgedCardData `json:"co_badged,omitempty"`
	ExpiryMonth string            `json:"expiry_month"`
	ExpiryYear  string            `json:"expiry_year"`
}

// ApplePayTokenKind distinguishes a decrypted PAN token from a pass-through
// network token. Only decrypted tokens expose a usable BIN.
type ApplePayTokenKind string

const (
	ApplePayDecrypted ApplePayTokenKind = "decrypted"
	ApplePayNetwork   ApplePayTokenKind = "network_token"
)

// ApplePayData is the wallet token detail on a live confirmation request.
type ApplePayData struct {
	TokenKind    ApplePayTokenKind `json:"token_kind"`
	DecryptedPAN string            `json:"-"`
	CardType     CardType          `json:"card_type"`
}

// PaymentMethodData is the instrument carried on an attempt. Exactly one of
// Card / ApplePay is set, per Kind.
type PaymentMethodData struct {
	Kind     PaymentMethodKind `json:"kind"`
	Card     *CardData         `json:"card,omitempty"`
	ApplePay *ApplePayData     `json:"apple_pay,omitempty"`
}

const extendedBinLength = 8

// ExtendedBin returns the leading eight digits of a PAN, or "" when the
// number is too short to carry an extended BIN.
func ExtendedBin(pan string) string {
	if len(pan) < extendedBinLength {
		return ""
	}
	return pan[:extendedBinLength]
}
