package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strings"
)

// VerifyWebhookSignature checks the provider signature header
// ("ts=<unix>,v1=<hex hmac-sha256>") against the manifest
// "id:<dataID>;request-id:<requestID>;ts:<ts>;". Parts with empty values are
// left out of the manifest, as the provider does.
func VerifyWebhookSignature(signatureHeader, requestID, dataID, secret string) bool {
	secret = strings.TrimSpace(secret)
	ts, v1 := parseSignatureHeader(signatureHeader)
	if secret == "" || ts == "" || v1 == "" {
		return false
	}

	expected, err := hex.DecodeString(strings.ToLower(v1))
	if err != nil {
		return false
	}
	manifest := SignatureManifest(dataID, requestID, ts)
	return verifyHMAC([]byte(manifest), expected, []byte(secret), sha256.New)
}

// SignatureManifest builds the signed string for a delivery.
func SignatureManifest(dataID, requestID, ts string) string {
	var b strings.Builder
	if dataID != "" {
		b.WriteString("id:" + strings.ToLower(dataID) + ";")
	}
	if requestID != "" {
		b.WriteString("request-id:" + requestID + ";")
	}
	if ts != "" {
		b.WriteString("ts:" + ts + ";")
	}
	return b.String()
}

// SignManifest returns the hex hmac-sha256 of manifest.
func SignManifest(manifest, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest))
	return hex.EncodeToString(mac.Sum(nil))
}

func parseSignatureHeader(header string) (ts, v1 string) {
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(k) {
		case "ts":
			ts = strings.TrimSpace(v)
		case "v1":
			v1 = strings.TrimSpace(v)
		}
	}
	return ts, v1
}

func verifyHMAC(payload, expectedSig, secret []byte, hashFunc func() hash.Hash) bool {
	mac := hmac.New(hashFunc, secret)
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), expectedSig)
}
