package checkout

import (
	"maps"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
)

var phonePattern = regexp.MustCompile(`^01[0125][0-9]{8}$`)

const (
	minDetailsLength = 10
	minCityLength    = 2
)

// ValidateAddress checks the shipping form. It returns a *ValidationError
// naming every invalid field, or nil.
func ValidateAddress(addr domain.ShippingAddress) error {
	fields := make(map[string]string)

	checkField(fields, "details", addr.Details, minDetailsLength, nil)
	checkField(fields, "phone", addr.Phone, 0, phonePattern)
	checkField(fields, "city", addr.City, minCityLength, nil)

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Validate checks the whole submission, shipping form and payment method.
func Validate(addr domain.ShippingAddress, method domain.PaymentMethodType) error {
	fields := make(map[string]string)

	if err := ValidateAddress(addr); err != nil {
		maps.Copy(fields, err.(*ValidationError).Fields)
	}
	if strings.TrimSpace(string(method)) == "" {
		fields["paymentMethod"] = "paymentMethod is required"
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func checkField(fields map[string]string, name, value string, minLength int, pattern *regexp.Regexp) {
	switch {
	case strings.TrimSpace(value) == "":
		fields[name] = name + " is required"
	case utf8.RuneCountInString(value) < minLength:
		fields[name] = name + " is too short"
	case pattern != nil && !pattern.MatchString(value):
		fields[name] = "Invalid " + name + " format"
	}
}
