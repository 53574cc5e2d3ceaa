package domain

import (
	"fmt"
	"strings"
)

type OrderStatus string

const (
	StatusOpen                OrderStatus = "OPEN"
	StatusClosedWithSuccess   OrderStatus = "CLOSED_WITH_SUCCESS"
	StatusClosedWithoutStock  OrderStatus = "CLOSED_WITHOUT_STOCK"
	StatusClosedWithoutCredit OrderStatus = "CLOSED_WITHOUT_CREDIT"
)

// IsTerminal reports whether the saga for the order has concluded.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusClosedWithSuccess || s == StatusClosedWithoutStock || s == StatusClosedWithoutCredit
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentApproved PaymentStatus = "APPROVED"
	PaymentRejected PaymentStatus = "REJECTED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

type PaymentMethod string

const (
	CreditCard PaymentMethod = "CREDIT_CARD"
	DebitCard  PaymentMethod = "DEBIT_CARD"
)

var (
	orderStatuses   = []OrderStatus{StatusOpen, StatusClosedWithSuccess, StatusClosedWithoutStock, StatusClosedWithoutCredit}
	paymentStatuses = []PaymentStatus{PaymentPending, PaymentApproved, PaymentRejected, PaymentRefunded}
	paymentMethods  = []PaymentMethod{CreditCard, DebitCard}
)

func ParseOrderStatus(s string) (OrderStatus, error) {
	return parseEnum(s, orderStatuses, "order status")
}

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	return parseEnum(s, paymentStatuses, "payment status")
}

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	return parseEnum(s, paymentMethods, "payment method")
}

func parseEnum[T ~string](s string, values []T, kind string) (T, error) {
	for _, v := range values {
		if strings.EqualFold(string(v), strings.TrimSpace(s)) {
			return v, nil
		}
	}
	var zero T
	return zero, &ValidationError{Messages: []string{fmt.Sprintf("The %s=[%s] is invalid", kind, s)}}
}
