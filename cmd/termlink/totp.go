package main

import (
	"fmt"
	"io"

	"github.com/mdp/qrterminal/v3"
	"github.com/pquerna/otp/totp"
	"github.com/spf13/cobra"
)

const totpIssuer = "termlink"

func newTOTPCmd() *cobra.Command {
	var account string
	var noQR bool
	cmd := &cobra.Command{
		Use:   "totp",
		Short: "Generate a TOTP secret for the SSH second factor",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, url, err := generateTOTP(account)
			if err != nil {
				return err
			}
			printEnrollment(cmd.OutOrStdout(), secret, url, !noQR)
			return nil
		},
	}
	cmd.Flags().StringVar(&account, "account", "termlink", "account name shown in the authenticator app")
	cmd.Flags().BoolVar(&noQR, "no-qr", false, "skip the terminal QR code")
	return cmd
}

func generateTOTP(account string) (string, string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: account,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

func printEnrollment(w io.Writer, secret, url string, qr bool) {
	_, _ = fmt.Fprintf(w, "totp_secret: %s\n", secret)
	_, _ = fmt.Fprintf(w, "otpauth_url: %s\n", url)
	if qr {
		_, _ = fmt.Fprintln(w, "totp_qr:")
		qrterminal.GenerateHalfBlock(url, qrterminal.L, w)
	}
	_, _ = fmt.Fprintln(w, "set ssh.totp_secret in the config to require it")
}
