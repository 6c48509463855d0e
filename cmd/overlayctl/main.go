// Command overlayctl is the operator CLI for an overlay node's identity,
// descriptor, and connectivity: generating and rotating the node's signing
// key, printing its self-signed PeerDescriptor, and sending a signed ping
// to a remote control endpoint.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/snapetech/slskdn-sub011/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:   "overlayctl",
	Short: "Overlay node identity and descriptor CLI",
	Long: `overlayctl manages an overlay node's long-lived identity keystore,
prints the node's self-signed PeerDescriptor (or writes it to a file), and can send a
signed control-plane ping to a remote node for connectivity testing.`,
	Version: version.String(),
}

func main() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "overlayctl: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Subcommands register themselves in their own files:
	// - identity.go: identityCmd (generate/show/rotate)
	// - descriptor.go: descriptorCmd (show)
	// - ping.go: pingCmd
}
