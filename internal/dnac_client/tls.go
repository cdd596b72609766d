package dnac_client

import (
	"crypto/tls"
	"fmt"

	"github.com/docker/go-connections/tlsconfig"
)

// NewTLSConfig builds the client TLS configuration. With verify disabled
// the controller certificate is not checked; caFile, when set, replaces
// the system roots.
func NewTLSConfig(verify bool, caFile string) (*tls.Config, error) {
	cfg, err := tlsconfig.Client(tlsconfig.Options{
		CAFile:             caFile,
		InsecureSkipVerify: !verify,
		ExclusiveRootPools: caFile != "",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build TLS config: %w", err)
	}
	return cfg, nil
}
