package payment

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"

	"github.com/tidwall/gjson"
)

// paymobHMACFields is the order Paymob concatenates transaction fields in
// before signing. Paths are relative to the callback's "obj".
var paymobHMACFields = []string{
	"amount_cents",
	"created_at",
	"currency",
	"error_occured",
	"has_parent_transaction",
	"id",
	"integration_id",
	"is_3d_secure",
	"is_auth",
	"is_capture",
	"is_refunded",
	"is_standalone_payment",
	"is_voided",
	"order.id",
	"owner",
	"pending",
	"source_data.pan",
	"source_data.sub_type",
	"source_data.type",
	"success",
}

// paymobSigningString builds the string Paymob signs. Numbers keep their raw
// form and booleans render as "true"/"false". ok is false if any field is absent.
func paymobSigningString(obj gjson.Result) (string, bool) {
	var b strings.Builder
	for _, path := range paymobHMACFields {
		v := obj.Get(path)
		if !v.Exists() {
			return "", false
		}
		b.WriteString(v.String())
	}
	return b.String(), true
}

// VerifyHMAC checks a Paymob transaction callback body against its signature.
// It fails closed on an empty secret, malformed JSON or a missing field.
func VerifyHMAC(rawBody []byte, signature, secret string) bool {
	if secret == "" || signature == "" || !gjson.ValidBytes(rawBody) {
		return false
	}
	obj := gjson.GetBytes(rawBody, "obj")
	if !obj.IsObject() {
		return false
	}
	msg, ok := paymobSigningString(obj)
	if !ok {
		return false
	}
	expected := signPaymob(msg, secret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

func signPaymob(msg, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}
