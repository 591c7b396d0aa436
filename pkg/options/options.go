package options

import (
	"fmt"
	"net"

	"github.com/spf13/pflag"
)

// IOptions is implemented by every option group so commands can compose
// them into named flag sets uniformly.
type IOptions interface {
	// Validate is used to parse and validate the parameters entered by
	// the user at the command line when the program starts.
	Validate() []error

	// AddFlags adds the group's flags to the specified FlagSet.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}

// ValidateAddress checks that addr is a host:port pair with a valid port.
func ValidateAddress(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if port == "" {
		return fmt.Errorf("invalid address %q: missing port", addr)
	}
	if host != "" {
		if ip := net.ParseIP(host); ip == nil {
			// Hostnames are allowed; reject only empty labels.
			if len(host) == 0 {
				return fmt.Errorf("invalid address %q: empty host", addr)
			}
		}
	}
	return nil
}
