// Package codec renders QR payloads into PNG images.
//
// Rendering is a pure function of the payload and options. Premium options
// (custom colours, logo overlay) are applied when present; the service layer
// decides whether an account's plan allows them.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"strconv"

	"github.com/DukeRupert/qrapi/internal/domain"
	"github.com/disintegration/imaging"
	"github.com/skip2/go-qrcode"
)

// LogoScale is the logo's maximum share of the image side. Highest error
// correction recovers up to 30% damage, so the logo stays well below that.
const LogoScale = 5

// MaxLogoSide bounds the width and height of an uploaded logo in pixels.
// Dimensions are checked from the image header before any pixels are decoded.
const MaxLogoSide = 2048

var (
	// ErrInvalidColor is returned for colours not in #RRGGBB form.
	ErrInvalidColor = errors.New("color must be in #RRGGBB form")

	// ErrLogoTooLarge is returned when a logo exceeds MaxLogoSide.
	ErrLogoTooLarge = fmt.Errorf("logo must be at most %dx%d pixels", MaxLogoSide, MaxLogoSide)
)

// Renderer encodes a payload into an image.
type Renderer interface {
	// Render returns PNG bytes for payload. opts.Size is both width and height.
	Render(payload string, opts domain.RenderOptions) ([]byte, error)
}

// qrRenderer implements Renderer using go-qrcode and imaging.
type qrRenderer struct{}

// NewRenderer creates the default QR renderer.
func NewRenderer() Renderer {
	return &qrRenderer{}
}

func (r *qrRenderer) Render(payload string, opts domain.RenderOptions) ([]byte, error) {
	size := opts.Size
	if size == 0 {
		size = domain.DefaultQRSize
	}

	level := qrcode.Medium
	if len(opts.Logo) > 0 {
		level = qrcode.Highest
	}

	qr, err := qrcode.New(payload, level)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	if opts.Color != "" {
		fg, err := ParseHexColor(opts.Color)
		if err != nil {
			return nil, err
		}
		qr.ForegroundColor = fg
	}
	if opts.BgColor != "" {
		bg, err := ParseHexColor(opts.BgColor)
		if err != nil {
			return nil, err
		}
		qr.BackgroundColor = bg
	}

	if len(opts.Logo) == 0 {
		return qr.PNG(size)
	}

	return overlayLogo(qr, size, opts.Logo)
}

// overlayLogo draws the logo, fitted to a fifth of the image, in the centre
// of the code.
func overlayLogo(qr *qrcode.QRCode, size int, logo []byte) ([]byte, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(logo))
	if err != nil {
		return nil, fmt.Errorf("decode logo: %w", err)
	}
	if cfg.Width > MaxLogoSide || cfg.Height > MaxLogoSide {
		return nil, ErrLogoTooLarge
	}

	logoImg, err := imaging.Decode(bytes.NewReader(logo))
	if err != nil {
		return nil, fmt.Errorf("decode logo: %w", err)
	}

	base := qr.Image(size)
	side := base.Bounds().Dx() / LogoScale
	fitted := imaging.Fit(logoImg, side, side, imaging.Lanczos)
	composed := imaging.OverlayCenter(base, fitted, 1.0)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, composed, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseHexColor parses a "#RRGGBB" string into an opaque colour.
func ParseHexColor(s string) (color.Color, error) {
	if len(s) != 7 || s[0] != '#' {
		return nil, ErrInvalidColor
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return nil, ErrInvalidColor
	}
	return color.RGBA{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
		A: 0xff,
	}, nil
}
