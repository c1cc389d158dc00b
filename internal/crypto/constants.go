package crypto

const (
	HashSize          = 32
	AddressSize       = 20
	Ed25519PublicSize = 32
)
