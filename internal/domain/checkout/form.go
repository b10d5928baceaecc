package checkout

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"membership-portal/internal/apperr"

	"github.com/go-playground/validator/v10"
)

// Form is everything the buyer types in. Card fields are not needed when
// the browser already tokenised the card into PaymentMethodID.
type Form struct {
	Name       string `json:"name" validate:"required,max=200"`
	Email      string `json:"email" validate:"required,email"`
	Address    string `json:"address" validate:"required,max=500"`
	Country    string `json:"country" validate:"required,max=64"`
	PostalCode string `json:"postal_code" validate:"required,max=20"`

	CardNumber string `json:"card_number" validate:"required_without=PaymentMethodID"`
	Expiry     string `json:"expiry" validate:"required_without=PaymentMethodID"`
	CVV        string `json:"cvv" validate:"required_without=PaymentMethodID"`

	PaymentMethodID string `json:"payment_method_id"`
}

// Billing is the part of the form echoed back after a failed attempt.
// Card data never is.
type Billing struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Address    string `json:"address"`
	Country    string `json:"country"`
	PostalCode string `json:"postal_code"`
}

type Card struct {
	Number   string
	ExpMonth int
	ExpYear  int
	CVC      string
}

// Display is the card number grouped in fours with all but the last four
// digits hidden.
func (c Card) Display() string {
	if len(c.Number) <= 4 {
		return c.Number
	}
	masked := strings.Repeat("•", len(c.Number)-4) + c.Number[len(c.Number)-4:]
	return GroupDigits(masked)
}

func (f Form) Billing() Billing {
	return Billing{
		Name:       strings.TrimSpace(f.Name),
		Email:      strings.TrimSpace(f.Email),
		Address:    strings.TrimSpace(f.Address),
		Country:    strings.TrimSpace(f.Country),
		PostalCode: strings.TrimSpace(f.PostalCode),
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_without":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		return "is too long"
	default:
		return "is invalid"
	}
}

// Normalize validates the form and returns the trimmed billing details and,
// unless a payment method token was given, the parsed card. All problems are
// reported together as one validation error.
func Normalize(f Form, now time.Time) (Billing, *Card, error) {
	b := f.Billing()
	trimmed := f
	trimmed.Name, trimmed.Email, trimmed.Address = b.Name, b.Email, b.Address
	trimmed.Country, trimmed.PostalCode = b.Country, b.PostalCode
	trimmed.CardNumber = strings.TrimSpace(f.CardNumber)
	trimmed.Expiry = strings.TrimSpace(f.Expiry)
	trimmed.CVV = strings.TrimSpace(f.CVV)
	trimmed.PaymentMethodID = strings.TrimSpace(f.PaymentMethodID)

	fields := map[string]string{}
	if err := validate.Struct(trimmed); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return b, nil, fmt.Errorf("checkout.Normalize: %w", err)
		}
		for _, fe := range verrs {
			fields[fe.Field()] = fieldMessage(fe)
		}
	}

	if trimmed.PaymentMethodID != "" {
		if len(fields) > 0 {
			return b, nil, apperr.Validation(fields)
		}
		return b, nil, nil
	}

	card := &Card{}
	if _, bad := fields["card_number"]; !bad {
		number, err := NormalizeCardNumber(trimmed.CardNumber)
		if err != nil {
			fields["card_number"] = err.Error()
		}
		card.Number = number
	}
	if _, bad := fields["expiry"]; !bad {
		month, year, err := ParseExpiry(trimmed.Expiry, now)
		if err != nil {
			fields["expiry"] = err.Error()
		}
		card.ExpMonth, card.ExpYear = month, year
	}
	if _, bad := fields["cvv"]; !bad {
		cvc, err := NormalizeCVV(trimmed.CVV)
		if err != nil {
			fields["cvv"] = err.Error()
		}
		card.CVC = cvc
	}

	if len(fields) > 0 {
		return b, nil, apperr.Validation(fields)
	}
	return b, card, nil
}

// DigitsOnly drops everything but ASCII digits.
func DigitsOnly(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// GroupDigits inserts a space after every fourth character.
func GroupDigits(s string) string {
	runes := []rune(s)
	var sb strings.Builder
	for i, r := range runes {
		if i > 0 && i%4 == 0 {
			sb.WriteByte(' ')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func NormalizeCardNumber(s string) (string, error) {
	for _, r := range s {
		if !(r >= '0' && r <= '9') && r != ' ' && r != '-' {
			return "", errors.New("must contain only digits")
		}
	}
	digits := DigitsOnly(s)
	if len(digits) < 12 || len(digits) > 19 {
		return "", errors.New("must be 12 to 19 digits")
	}
	return digits, nil
}

// ParseExpiry accepts MM/YY, MM/YYYY or MMYY. A card is valid through the
// last day of its expiry month.
func ParseExpiry(s string, now time.Time) (int, int, error) {
	digits := DigitsOnly(s)
	var month, year int
	switch len(digits) {
	case 4:
		month, _ = strconv.Atoi(digits[:2])
		year, _ = strconv.Atoi(digits[2:])
		year += 2000
	case 6:
		month, _ = strconv.Atoi(digits[:2])
		year, _ = strconv.Atoi(digits[2:])
	default:
		return 0, 0, errors.New("must be MM/YY")
	}
	if month < 1 || month > 12 {
		return 0, 0, errors.New("month must be 01 to 12")
	}

	firstOfNext := time.Date(year, time.Month(month)+1, 1, 0, 0, 0, 0, time.UTC)
	if !now.UTC().Before(firstOfNext) {
		return 0, 0, errors.New("card has expired")
	}
	return month, year, nil
}

// FormatExpiry renders month and year as MM/YY.
func FormatExpiry(month, year int) string {
	return fmt.Sprintf("%02d/%02d", month, year%100)
}

func NormalizeCVV(s string) (string, error) {
	digits := DigitsOnly(s)
	if digits != s || len(digits) < 3 || len(digits) > 4 {
		return "", errors.New("must be 3 or 4 digits")
	}
	return digits, nil
}
