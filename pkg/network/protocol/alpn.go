package protocol

import (
	"fmt"
	"strings"
)

const (
	protocolPrefix = "appealproxy"
	currentVersion = "0"
	// Network names are short lowercase identifiers such as "devnet".
	maxNetworkLength = 16
)

// ProtocolID is an ALPN protocol identifier.
// Format: appealproxy/<version>/<network>
type ProtocolID struct {
	Version string
	Network string
}

func NewProtocolID(network string) *ProtocolID {
	return &ProtocolID{
		Version: currentVersion,
		Network: network,
	}
}

func (p *ProtocolID) String() string {
	return strings.Join([]string{protocolPrefix, p.Version, p.Network}, "/")
}

// ParseProtocolID parses and validates an ALPN protocol string.
func ParseProtocolID(protocol string) (*ProtocolID, error) {
	parts := strings.Split(protocol, "/")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid protocol format: %s", protocol)
	}
	if parts[0] != protocolPrefix {
		return nil, fmt.Errorf("invalid protocol prefix: %s", parts[0])
	}
	if parts[1] != currentVersion {
		return nil, fmt.Errorf("unsupported protocol version: %s", parts[1])
	}
	if err := validateNetwork(parts[2]); err != nil {
		return nil, err
	}
	return &ProtocolID{Version: parts[1], Network: parts[2]}, nil
}

func validateNetwork(network string) error {
	if network == "" || len(network) > maxNetworkLength {
		return fmt.Errorf("invalid network name length: %q", network)
	}
	for _, c := range network {
		if (c < '0' || c > '9') && (c < 'a' || c > 'z') && c != '-' {
			return fmt.Errorf("invalid network name character: %c", c)
		}
	}
	return nil
}

// ValidateProtocol checks that protocol is well formed and names network.
func ValidateProtocol(protocol, network string) error {
	id, err := ParseProtocolID(protocol)
	if err != nil {
		return err
	}
	if id.Network != network {
		return fmt.Errorf("protocol network %q does not match %q", id.Network, network)
	}
	return nil
}

// AcceptableProtocols returns the ALPN strings a peer on network offers.
func AcceptableProtocols(network string) []string {
	return []string{NewProtocolID(network).String()}
}
