package shared

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// SignatureHeader carries the webhook HMAC.
	SignatureHeader = "X-Webhook-Signature"
	// SignaturePrefix is the optional algorithm tag in front of the hex digest.
	SignaturePrefix = "sha256="
)

// SignWebhook returns the lowercase hex HMAC-SHA256 of body under secret.
func SignWebhook(body []byte, secret string) string {
	return hex.EncodeToString(webhookDigest(body, secret))
}

func webhookDigest(body []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

// VerifyWebhookSignature reports whether claimed is the HMAC-SHA256 of body
// under secret, given either as bare hex or as "sha256=<hex>".
// body must be the exact bytes received on the wire.
func VerifyWebhookSignature(body []byte, claimed, secret string) bool {
	if secret == "" || claimed == "" {
		return false
	}

	claimed = strings.TrimPrefix(claimed, SignaturePrefix)
	if len(claimed) != hex.EncodedLen(sha256.Size) {
		return false
	}

	var got [sha256.Size]byte
	if _, err := hex.Decode(got[:], []byte(claimed)); err != nil {
		return false
	}

	return hmac.Equal(got[:], webhookDigest(body, secret))
}
