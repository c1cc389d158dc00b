package network

import (
	"crypto/ed25519"
	"crypto/tls"
	"fmt"
	"net"

	"github.com/eigerco/appealproxy/internal/crypto"
	"github.com/eigerco/appealproxy/internal/proxy"
	"github.com/eigerco/appealproxy/pkg/network/cert"
	"github.com/eigerco/appealproxy/pkg/network/handlers"
	"github.com/eigerco/appealproxy/pkg/network/protocol"
	"github.com/eigerco/appealproxy/pkg/network/transport"
)

type ServerConfig struct {
	ListenAddr string
	Network    string
	PrivateKey ed25519.PrivateKey
}

// Devnet exposes the simulated collaborators to operator peers. A nil
// Devnet leaves the devnet stream kinds unserved.
type Devnet struct {
	Arbitrator handlers.DevnetArbitrator
	Oracle     handlers.DevnetOracle
	Operators  crypto.ED25519PublicKeySet
}

// Server serves a proxy over QUIC.
type Server struct {
	transport *transport.Transport
}

func NewServer(cfg ServerConfig, p *proxy.Proxy, devnet *Devnet) (*Server, error) {
	tlsCert, err := newCertificate(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}

	registry := protocol.NewRegistry()
	handlers.RegisterProxyHandlers(registry, p)
	if devnet != nil {
		handlers.RegisterDevnetHandlers(registry, devnet.Arbitrator, devnet.Oracle, devnet.Operators)
	}

	tr, err := transport.NewTransport(transport.Config{
		TLSCert:       tlsCert,
		ListenAddr:    cfg.ListenAddr,
		Network:       cfg.Network,
		CertValidator: cert.NewValidator(),
		Registry:      registry,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	return &Server{transport: tr}, nil
}

func (s *Server) Start() error {
	return s.transport.Start()
}

func (s *Server) Stop() error {
	return s.transport.Stop()
}

func (s *Server) Addr() net.Addr {
	return s.transport.Addr()
}

func newCertificate(key ed25519.PrivateKey) (*tls.Certificate, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid ed25519 private key length %d", len(key))
	}
	c, err := cert.NewGenerator(cert.Config{
		PublicKey:  key.Public().(ed25519.PublicKey),
		PrivateKey: key,
	}).GenerateCertificate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate certificate: %w", err)
	}
	return c, nil
}
