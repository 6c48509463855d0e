package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/spf13/cobra"

	"github.com/snapetech/slskdn-sub011/internal/overlay/collab"
	"github.com/snapetech/slskdn-sub011/internal/overlay/envelope"
	"github.com/snapetech/slskdn-sub011/internal/overlay/keystore"
)

var (
	descriptorEndpoint string
	descriptorValidFor time.Duration
	descriptorOutput   string
)

var descriptorCmd = &cobra.Command{
	Use:   "descriptor",
	Short: "Build, sign, and print the node's own PeerDescriptor",
}

var descriptorShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Self-sign a PeerDescriptor for the node's current identity and print it as CBOR",
	RunE:  runDescriptorShow,
}

func init() {
	rootCmd.AddCommand(descriptorCmd)
	descriptorCmd.AddCommand(descriptorShowCmd)

	descriptorCmd.PersistentFlags().StringVarP(&keystorePath, "keystore", "k", ".overlay/keys", "path to the identity keystore file")
	descriptorShowCmd.Flags().StringVarP(&descriptorEndpoint, "endpoint", "e", "", "QUIC control endpoint to advertise, e.g. 203.0.113.4:4433 (required)")
	descriptorShowCmd.Flags().DurationVar(&descriptorValidFor, "valid-for", 5*365*24*time.Hour, "descriptor validity period from now")
	descriptorShowCmd.Flags().StringVarP(&descriptorOutput, "output", "o", "", "write CBOR-encoded descriptor here instead of stdout hex")
	descriptorShowCmd.MarkFlagRequired("endpoint")
}

func runDescriptorShow(cmd *cobra.Command, args []string) error {
	ks, err := keystore.Open(keystorePath)
	if err != nil {
		return fmt.Errorf("open keystore: %w", err)
	}

	desc, err := buildSelfDescriptor(ks, descriptorEndpoint, descriptorValidFor)
	if err != nil {
		return err
	}

	raw, err := cbor.Marshal(desc)
	if err != nil {
		return fmt.Errorf("marshal descriptor: %w", err)
	}

	if descriptorOutput != "" {
		return writeDescriptorFile(descriptorOutput, raw)
	}

	fmt.Printf("peer id:     %s\n", desc.PeerID)
	fmt.Printf("endpoint:    %s\n", descriptorEndpoint)
	fmt.Printf("expiry:      %s\n", desc.Expiry.Format(time.RFC3339))
	fmt.Printf("sequence:    %d\n", desc.SequenceNumber)
	fmt.Printf("cbor (hex):  %s\n", hex.EncodeToString(raw))
	return nil
}

// buildSelfDescriptor mirrors the daemon's own self-descriptor construction
// (cmd/slskdn-overlayd's selfDescriptor), so an operator can inspect exactly
// what the running node would publish before it starts.
func buildSelfDescriptor(ks *keystore.KeyStore, endpoint string, validFor time.Duration) (*collab.PeerDescriptor, error) {
	pub, err := identityPublicKey(ks)
	if err != nil {
		return nil, err
	}

	desc := &collab.PeerDescriptor{
		PeerID:             envelope.DerivePeerID(pub),
		ControlSigningKeys: []ed25519.PublicKey{pub},
		Endpoints:          []string{endpoint},
		Expiry:             time.Now().Add(validFor),
		SequenceNumber:     1,
	}
	if err := collab.SelfSign(ks.Current(), desc); err != nil {
		return nil, fmt.Errorf("self-sign descriptor: %w", err)
	}
	return desc, nil
}
