package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/snapetech/slskdn-sub011/internal/overlay/envelope"
	"github.com/snapetech/slskdn-sub011/internal/overlay/keystore"
)

var keystorePath string

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Manage the node's long-lived signing identity",
}

var identityGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Create the identity keystore file if it does not already exist",
	RunE:  runIdentityGenerate,
}

var identityShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the node's current peer id and key type",
	RunE:  runIdentityShow,
}

var identityRotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Rotate the node's identity key, retiring the previous one",
	RunE:  runIdentityRotate,
}

func init() {
	rootCmd.AddCommand(identityCmd)
	identityCmd.AddCommand(identityGenerateCmd, identityShowCmd, identityRotateCmd)

	identityCmd.PersistentFlags().StringVarP(&keystorePath, "keystore", "k", ".overlay/keys", "path to the identity keystore file")
}

func runIdentityGenerate(cmd *cobra.Command, args []string) error {
	ks, err := keystore.Open(keystorePath)
	if err != nil {
		return fmt.Errorf("open keystore: %w", err)
	}
	return printIdentity(ks)
}

func runIdentityShow(cmd *cobra.Command, args []string) error {
	ks, err := keystore.Open(keystorePath)
	if err != nil {
		return fmt.Errorf("open keystore: %w", err)
	}
	return printIdentity(ks)
}

func runIdentityRotate(cmd *cobra.Command, args []string) error {
	ks, err := keystore.Open(keystorePath)
	if err != nil {
		return fmt.Errorf("open keystore: %w", err)
	}
	if _, err := ks.Rotate(); err != nil {
		return fmt.Errorf("rotate identity key: %w", err)
	}
	fmt.Println("identity key rotated")
	return printIdentity(ks)
}

func printIdentity(ks *keystore.KeyStore) error {
	peerID, err := currentPeerID(ks)
	if err != nil {
		return err
	}
	kp := ks.Current()
	fmt.Printf("peer id:     %s\n", peerID)
	fmt.Printf("key type:    %s\n", kp.Type())
	fmt.Printf("key id:      %s\n", kp.ID())
	fmt.Printf("rotated at:  %s\n", ks.RotatedAt().Format("2006-01-02T15:04:05Z07:00"))
	fmt.Printf("retired keys kept: %d\n", len(ks.VerificationKeys())-1)
	return nil
}

func currentPeerID(ks *keystore.KeyStore) (string, error) {
	pub, err := identityPublicKey(ks)
	if err != nil {
		return "", err
	}
	return envelope.DerivePeerID(pub), nil
}
