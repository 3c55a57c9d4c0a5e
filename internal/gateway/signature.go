package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

// ComputeSignature returns hex(SHA512(orderRef + statusCode + grossAmount + secret)).
// grossAmount must be the exact string the provider sent.
func ComputeSignature(orderRef, statusCode, grossAmount, secret string) string {
	sum := sha512.Sum512([]byte(orderRef + statusCode + grossAmount + secret))
	return hex.EncodeToString(sum[:])
}

// Sign fills in the signature field of an outbound notification.
func Sign(n *Notification, serverKey string) {
	n.SignatureKey = ComputeSignature(n.OrderID, n.StatusCode, n.GrossAmount, serverKey)
}

type signer struct {
	serverKey string
}

func (s signer) VerifySignature(n *Notification) bool {
	if n == nil || n.SignatureKey == "" {
		return false
	}
	expected := ComputeSignature(n.OrderID, n.StatusCode, n.GrossAmount, s.serverKey)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(n.SignatureKey)))
}
