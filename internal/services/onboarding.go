package services

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"concierge-whatsapp/internal/models"
	"concierge-whatsapp/pkg/phone"

	"github.com/mdp/qrterminal/v3"
	"github.com/skip2/go-qrcode"
	"github.com/vincent-petithory/dataurl"
)

// QRSize is the side of generated PNG codes, in pixels.
const QRSize = 256

// Onboarding builds the sandbox join links that clients scan to opt in.
type Onboarding struct {
	defaultNumber string
}

// NewOnboarding uses defaultNumber for tenants without their own WhatsApp number.
func NewOnboarding(defaultNumber string) *Onboarding {
	return &Onboarding{defaultNumber: defaultNumber}
}

// JoinURL returns the wa.me deep link that sends "join <code>" to the tenant's number.
func (o *Onboarding) JoinURL(t models.TenantPublic) (string, error) {
	number := t.WhatsAppNumber
	if number == "" {
		number = o.defaultNumber
	}
	digits := phone.Digits(number)
	if digits == "" {
		return "", ErrMessagingNotConfigured
	}
	code := strings.TrimSpace(t.SandboxJoinCode)
	if code == "" {
		return "", fmt.Errorf("%w: tenant %d has no sandbox join code", ErrValidation, t.ID)
	}
	return "https://wa.me/" + digits + "?text=" + strings.ReplaceAll(url.QueryEscape("join "+code), "+", "%20"), nil
}

// QRPNG renders the join link as a PNG image.
func (o *Onboarding) QRPNG(t models.TenantPublic) ([]byte, error) {
	link, err := o.JoinURL(t)
	if err != nil {
		return nil, err
	}
	png, err := qrcode.Encode(link, qrcode.Medium, QRSize)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}

// QRDataURL renders the join link as a data: URL, for embedding in JSON.
func (o *Onboarding) QRDataURL(t models.TenantPublic) (string, string, error) {
	link, err := o.JoinURL(t)
	if err != nil {
		return "", "", err
	}
	png, err := qrcode.Encode(link, qrcode.Medium, QRSize)
	if err != nil {
		return "", "", fmt.Errorf("encode qr: %w", err)
	}
	return link, dataurl.New(png, "image/png").String(), nil
}

// PrintQR writes the join link and its QR code to a terminal.
func (o *Onboarding) PrintQR(w io.Writer, t models.TenantPublic) error {
	link, err := o.JoinURL(t)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s (%s)\n%s\n\n", t.Name, t.SandboxJoinCode, link)
	qrterminal.GenerateHalfBlock(link, qrterminal.L, w)
	return nil
}
