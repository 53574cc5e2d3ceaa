package domain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	domainSuffix    = "by domain order"
	blankMessage    = "Field=[%s] should not be empty or null"
	patternMessage  = "The field=[%s] is null or has an invalid pattern"
	positiveMessage = "Field=[%s] should be greater than zero"
)

var (
	skuPattern = regexp.MustCompile(`^[A-Z0-9\-]{5,20}$`)
	cpfPattern = regexp.MustCompile(`^\d{11}$`)
)

type rule struct {
	broken  bool
	message string
}

func blank(field, value string) rule {
	return rule{broken: strings.TrimSpace(value) == "", message: fmt.Sprintf(blankMessage, field)}
}

func pattern(field, value string, re *regexp.Regexp) rule {
	return rule{broken: !re.MatchString(value), message: fmt.Sprintf(patternMessage, field)}
}

func positive(field string, broken bool) rule {
	return rule{broken: broken, message: fmt.Sprintf(positiveMessage, field)}
}

func validate(rules ...rule) error {
	var msgs []string
	for _, r := range rules {
		if r.broken {
			msgs = append(msgs, r.message+" "+domainSuffix)
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return &ValidationError{Messages: msgs}
}

func orderRules(sku string, qty int, cpf string, total decimal.Decimal) []rule {
	return []rule{
		blank("product_sku", sku),
		pattern("product_sku", sku, skuPattern),
		positive("product_quantity", qty <= 0),
		blank("client_cpf", cpf),
		pattern("client_cpf", cpf, cpfPattern),
		positive("total_amount", qty > 0 && !total.IsPositive()),
	}
}

func paymentRules(method PaymentMethod, cardNumber string) []rule {
	return []rule{
		{broken: method != CreditCard && method != DebitCard, message: fmt.Sprintf(patternMessage, "payment_method")},
		blank("card_number", cardNumber),
	}
}
