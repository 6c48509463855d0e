package main

import (
	"context"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/snapetech/slskdn-sub011/internal/overlay/envelope"
	"github.com/snapetech/slskdn-sub011/internal/overlay/keystore"
	"github.com/snapetech/slskdn-sub011/internal/overlay/pin"
	"github.com/snapetech/slskdn-sub011/internal/overlay/signer"
	"github.com/snapetech/slskdn-sub011/internal/overlay/transport/quicctl"
)

var (
	pingAddr    string
	pingTimeout time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping [address]",
	Short: "Send a signed ping envelope to a remote overlay control endpoint",
	Long: `ping dials a remote node's QUIC control endpoint, pins its
certificate trust-on-first-use, signs a "ping" envelope with the local
identity key, and reports whether the send succeeded. It does not wait
for an application-level reply; the QUIC stream closing cleanly is
treated as delivery, same as the daemon's own bootstrap announce.`,
	Args: cobra.ExactArgs(1),
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().StringVarP(&keystorePath, "keystore", "k", ".overlay/keys", "path to the identity keystore file")
	pingCmd.Flags().DurationVarP(&pingTimeout, "timeout", "t", 5*time.Second, "dial and send timeout")
}

func runPing(cmd *cobra.Command, args []string) error {
	pingAddr = args[0]

	ks, err := keystore.Open(keystorePath)
	if err != nil {
		return fmt.Errorf("open keystore: %w", err)
	}
	peerID, err := currentPeerID(ks)
	if err != nil {
		return err
	}

	id := uuid.New()
	e := &envelope.ControlEnvelope{
		Type:            "ping",
		Payload:         []byte(peerID),
		TimestampUnixMs: time.Now().UnixMilli(),
		MessageID:       hex.EncodeToString(id[:]),
	}

	sgn := signer.New(ks)
	if err := sgn.Sign(e); err != nil {
		return fmt.Errorf("sign ping envelope: %w", err)
	}

	pinCache := pin.New(0)
	client := quicctl.NewClient(true)
	client.PinCheck = func(cert *x509.Certificate) error {
		return pinCache.Check(pingAddr, cert)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := client.SendControl(ctx, pingAddr, e); err != nil {
		return fmt.Errorf("send ping: %w", err)
	}

	fmt.Printf("ping sent to %s as %s\n", pingAddr, peerID)
	return nil
}
