package main

import (
	"os"

	"dairyops/internal/agent"
	"dairyops/internal/shared"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func (c *cli) webhookCmd() *cobra.Command {
	var (
		serverURL string
		bodyFile  string
		prefixed  bool
		amount    float64
		ev        shared.WebhookPaymentEvent
	)
	send := &cobra.Command{
		Use:   "send",
		Short: "Post a signed payment event to a running server.",
		Long: `Sign a payment event with the webhook secret and post it to
/api/webhook/payment. With --body the file is sent byte for byte.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if bodyFile == "" && ev.TxnRef == "" {
				return errors.New("either --txn-ref or --body is required")
			}
			cmd.SilenceUsage = true

			if cmd.Flags().Changed("amount") {
				ev.Amount = shared.NumberOf(amount)
			}
			s := agent.New(serverURL, c.cfg.WebhookSecret)
			s.Prefixed = prefixed

			var err error
			if bodyFile != "" {
				var body []byte
				body, err = os.ReadFile(bodyFile)
				if err != nil {
					return errors.Wrap(err, "read body")
				}
				err = s.Send(cmd.Context(), body)
			} else {
				err = s.SendPayment(cmd.Context(), ev)
			}
			if err != nil {
				return err
			}
			c.log.Info("webhook accepted", zap.String("server", serverURL), zap.String("txn_ref", ev.TxnRef))
			return nil
		},
	}
	flags := send.Flags()
	flags.StringVar(&serverURL, "url", "http://127.0.0.1:8080", "server base URL")
	flags.StringVar(&c.cfg.WebhookSecret, "secret", c.cfg.WebhookSecret, "shared secret (env "+shared.EnvWebhookSecret+")")
	flags.BoolVar(&prefixed, "prefixed", false, `send the signature as "sha256=<hex>"`)
	flags.StringVar(&bodyFile, "body", "", "file holding the exact body to sign and send")
	flags.StringVar(&ev.TxnRef, "txn-ref", "", "provider transaction reference")
	flags.Float64Var(&amount, "amount", 0, "amount; when set it must match the stored payment")
	flags.StringVar(&ev.Status, "status", "success", "provider status")

	webhook := &cobra.Command{
		Use:   "webhook",
		Short: "Payment webhook tools.",
	}
	webhook.AddCommand(send)
	return webhook
}
