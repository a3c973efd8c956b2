// Package pix builds static PIX "Merchant Presented QR" payloads in the EMV
// tag-length-value layout published by the Banco Central do Brasil.
package pix

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// ErrEncodingPrecondition is returned when the input cannot produce a valid payload.
	ErrEncodingPrecondition = errors.New("pix encoding precondition failed")
	// ErrInvalidPayload is returned by Verify for malformed or tampered payloads.
	ErrInvalidPayload = errors.New("invalid pix payload")
)

const (
	idFormatIndicator = "00"
	idInitiation      = "01"
	idMerchantAccount = "26"
	idCategoryCode    = "52"
	idCurrency        = "53"
	idAmount          = "54"
	idCountry         = "58"
	idMerchantName    = "59"
	idMerchantCity    = "60"
	idAdditionalData  = "62"
	idCRC             = "63"

	subGUI         = "00"
	subKey         = "01"
	subDescription = "05"

	gui            = "br.gov.bcb.pix"
	maxNameLen     = 25
	maxCityLen     = 15
	maxDescription = 25
	maxValueLen    = 99
)

// Payload is the merchant and amount tuple encoded into a QR payload.
type Payload struct {
	Key          string
	Amount       decimal.Decimal
	MerchantName string
	MerchantCity string
	Description  string
}

// Encode renders the payload string including its CRC16 trailer.
func Encode(p Payload) (string, error) {
	amount := p.Amount.Round(2)
	if !amount.IsPositive() {
		return "", fmt.Errorf("%w: amount must be positive", ErrEncodingPrecondition)
	}

	w := &tlvWriter{}
	w.field(idFormatIndicator, "01")
	w.field(idInitiation, "12")

	account := &tlvWriter{}
	account.field(subGUI, gui)
	account.field(subKey, strings.TrimSpace(p.Key))
	w.nested(idMerchantAccount, account)

	w.field(idCategoryCode, "0000")
	w.field(idCurrency, "986")
	w.field(idAmount, amount.StringFixed(2))
	w.field(idCountry, "BR")
	w.field(idMerchantName, truncate(strings.ToUpper(asciiFold(p.MerchantName)), maxNameLen))
	w.field(idMerchantCity, truncate(strings.ToUpper(asciiFold(p.MerchantCity)), maxCityLen))

	if desc := truncate(asciiFold(p.Description), maxDescription); desc != "" {
		extra := &tlvWriter{}
		extra.field(subDescription, desc)
		w.nested(idAdditionalData, extra)
	}
	if w.err != nil {
		return "", w.err
	}

	w.b.WriteString(idCRC + "04")
	body := w.b.String()
	return body + checksum(body), nil
}

// CRC16 computes CRC-16/CCITT-FALSE: polynomial 0x1021, initial value 0xFFFF,
// no reflection and no final XOR.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// Verify checks that a payload is well formed and its CRC trailer matches.
func Verify(payload string) error {
	if _, err := Fields(payload); err != nil {
		return err
	}
	n := len(payload)
	if n < 8 || payload[n-8:n-4] != idCRC+"04" {
		return fmt.Errorf("%w: missing crc field", ErrInvalidPayload)
	}
	if got, want := payload[n-4:], checksum(payload[:n-4]); got != want {
		return fmt.Errorf("%w: crc %s does not match %s", ErrInvalidPayload, got, want)
	}
	return nil
}

// Fields splits a payload into its top-level tag values.
func Fields(payload string) (map[string]string, error) {
	out := make(map[string]string)
	for i := 0; i < len(payload); {
		if i+4 > len(payload) {
			return nil, fmt.Errorf("%w: truncated header at %d", ErrInvalidPayload, i)
		}
		id := payload[i : i+2]
		size, err := strconv.Atoi(payload[i+2 : i+4])
		if err != nil {
			return nil, fmt.Errorf("%w: bad length for %s", ErrInvalidPayload, id)
		}
		start := i + 4
		if start+size > len(payload) {
			return nil, fmt.Errorf("%w: field %s overruns payload", ErrInvalidPayload, id)
		}
		out[id] = payload[start : start+size]
		i = start + size
	}
	return out, nil
}

func checksum(body string) string {
	return fmt.Sprintf("%04X", CRC16([]byte(body)))
}

type tlvWriter struct {
	b   strings.Builder
	err error
}

func (w *tlvWriter) field(id, value string) {
	if w.err != nil {
		return
	}
	if len(value) > maxValueLen {
		w.err = fmt.Errorf("%w: field %s longer than %d characters", ErrEncodingPrecondition, id, maxValueLen)
		return
	}
	w.b.WriteString(id)
	fmt.Fprintf(&w.b, "%02d", len(value))
	w.b.WriteString(value)
}

func (w *tlvWriter) nested(id string, inner *tlvWriter) {
	if inner.err != nil {
		if w.err == nil {
			w.err = inner.err
		}
		return
	}
	w.field(id, inner.b.String())
}

var folder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// asciiFold strips diacritics and drops anything outside printable ASCII so
// field lengths count bytes and characters alike.
func asciiFold(s string) string {
	folded, _, err := transform.String(folder, strings.TrimSpace(s))
	if err != nil {
		folded = s
	}
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7E {
			return -1
		}
		return r
	}, folded)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
