package cert

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base32"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/eigerco/appealproxy/internal/crypto"
)

// DNSNamePrefix is prepended to the encoded public key in the certificate DNS name.
const DNSNamePrefix = "a"

// DefaultValidityPeriod is used when Config.CertValidityPeriod is zero.
const DefaultValidityPeriod = 24 * time.Hour

var (
	ErrNotEd25519       = errors.New("certificate public key is not ed25519")
	ErrDNSNameMismatch  = errors.New("DNS name does not match public key")
	ErrNotYetValid      = errors.New("certificate is not yet valid")
	ErrExpired          = errors.New("certificate has expired")
	ErrInvalidAlgorithm = errors.New("invalid signature algorithm: expected Ed25519")
)

var base32Encoding = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// Generator creates self-signed TLS certificates binding a peer's ed25519 key.
type Generator struct {
	config Config
}

type Config struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
	// CertValidityPeriod defines how long the certificate remains valid.
	CertValidityPeriod time.Duration
}

func NewGenerator(config Config) *Generator {
	if config.CertValidityPeriod == 0 {
		config.CertValidityPeriod = DefaultValidityPeriod
	}
	return &Generator{config: config}
}

// Validator checks that a peer certificate is self-consistent: an ed25519
// key whose encoding is the only DNS name, within its validity window.
type Validator struct {
	now func() time.Time
}

func NewValidator() *Validator {
	return &Validator{now: time.Now}
}

func (v *Validator) ValidateCertificate(cert *x509.Certificate) error {
	if cert.SignatureAlgorithm != x509.PureEd25519 {
		return ErrInvalidAlgorithm
	}
	pubKey, ok := cert.PublicKey.(ed25519.PublicKey)
	if !ok {
		return ErrNotEd25519
	}
	if len(cert.DNSNames) != 1 {
		return fmt.Errorf("certificate must have exactly one DNS name, got %d", len(cert.DNSNames))
	}
	dnsName := cert.DNSNames[0]
	if !strings.HasPrefix(dnsName, DNSNamePrefix) {
		return fmt.Errorf("invalid DNS name format: %s", dnsName)
	}
	if dnsName != EncodePubKeyToDNS(pubKey) {
		return ErrDNSNameMismatch
	}

	now := v.now()
	if now.Before(cert.NotBefore) {
		return ErrNotYetValid
	}
	if now.After(cert.NotAfter) {
		return ErrExpired
	}
	return nil
}

func (v *Validator) ExtractPublicKey(cert *x509.Certificate) (ed25519.PublicKey, error) {
	pubKey, ok := cert.PublicKey.(ed25519.PublicKey)
	if !ok {
		return nil, ErrNotEd25519
	}
	return pubKey, nil
}

// PeerAddress is the address a connection acts as, derived from its certificate key.
func (v *Validator) PeerAddress(cert *x509.Certificate) (crypto.Address, error) {
	pubKey, err := v.ExtractPublicKey(cert)
	if err != nil {
		return crypto.Address{}, err
	}
	return crypto.AddressFromPublicKey(pubKey), nil
}

// EncodePubKeyToDNS encodes a public key as "a" + base32(pubKey).
func EncodePubKeyToDNS(pubKey ed25519.PublicKey) string {
	return DNSNamePrefix + base32Encoding.EncodeToString(pubKey)
}

func (g *Generator) GenerateCertificate() (*tls.Certificate, error) {
	dnsName := EncodePubKeyToDNS(g.config.PublicKey)

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			CommonName: dnsName,
		},
		DNSNames:  []string{dnsName},
		NotBefore: now,
		NotAfter:  now.Add(g.config.CertValidityPeriod),
		KeyUsage:  x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{
			x509.ExtKeyUsageServerAuth,
			x509.ExtKeyUsageClientAuth,
		},
		SignatureAlgorithm:    x509.PureEd25519,
		PublicKeyAlgorithm:    x509.Ed25519,
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, g.config.PublicKey, g.config.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	leaf, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	return &tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  g.config.PrivateKey,
		Leaf:        leaf,
	}, nil
}
