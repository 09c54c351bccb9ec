// internal/services/signature_service.go
package services

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/javajoker/digistore/internal/config"
	"github.com/javajoker/digistore/internal/models"
	"github.com/javajoker/digistore/internal/utils"
)

const SignatureHeader = "X-Signature"

const signaturePrefix = "sha256="

// ValidateSignature checks signatureHeader against hex(HMAC-SHA256(secret, rawBody)).
// An optional "sha256=" prefix is accepted. Malformed headers are invalid.
func ValidateSignature(rawBody []byte, signatureHeader, secret string) bool {
	received := strings.TrimSpace(signatureHeader)
	received = strings.TrimPrefix(received, signaturePrefix)
	if received == "" {
		return false
	}
	return utils.EqualHexDigest(utils.SignHMAC(secret, rawBody), received)
}

// SignatureHeaderValue renders the header a sender should attach to body.
func SignatureHeaderValue(rawBody []byte, secret string) string {
	return signaturePrefix + utils.SignHMAC(secret, rawBody)
}

type SignatureResult string

const (
	SignatureValid   SignatureResult = "valid"
	SignatureMissing SignatureResult = "missing"
	SignatureInvalid SignatureResult = "invalid"
	SignatureSkipped SignatureResult = "skipped"
)

// SignatureValidator applies the configured SignatureMode to inbound events.
type SignatureValidator struct {
	secret string
	mode   config.SignatureMode
	logger logrus.FieldLogger
}

func NewSignatureValidator(cfg config.WebhookConfig, logger logrus.FieldLogger) *SignatureValidator {
	return &SignatureValidator{
		secret: cfg.Secret,
		mode:   cfg.ResolvedMode(),
		logger: logger,
	}
}

func (v *SignatureValidator) Mode() config.SignatureMode {
	return v.mode
}

// Verify classifies the signature of rawBody. It never inspects parsed JSON.
func (v *SignatureValidator) Verify(rawBody []byte, header string) SignatureResult {
	if v.mode == config.SignatureModeDisabled || v.secret == "" {
		return SignatureSkipped
	}
	if strings.TrimSpace(header) == "" {
		if v.mode == config.SignatureModePermissive {
			v.logger.Warn("Webhook accepted without signature header")
		}
		return SignatureMissing
	}
	if !ValidateSignature(rawBody, header, v.secret) {
		return SignatureInvalid
	}
	return SignatureValid
}

// Accepted reports whether processing may continue under mode.
func (r SignatureResult) Accepted(mode config.SignatureMode) bool {
	switch r {
	case SignatureValid, SignatureSkipped:
		return true
	case SignatureMissing:
		return mode == config.SignatureModePermissive
	default:
		return false
	}
}

func (r SignatureResult) Status() models.SignatureStatus {
	return models.SignatureStatus(r)
}
