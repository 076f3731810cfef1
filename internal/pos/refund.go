package pos

import (
	"fmt"
	"strings"

	"github.com/tokoku/pos-core/internal/shared"
)

// RefundReason is the closed set of refund causes.
type RefundReason int

const (
	ReasonProductReturn RefundReason = iota
	ReasonMisplacedTransaction
	ReasonOrderCancellation
	ReasonOther
)

var reasonLabels = map[RefundReason]string{
	ReasonProductReturn:        "Product Return",
	ReasonMisplacedTransaction: "Misplaced Transaction",
	ReasonOrderCancellation:    "Order Cancellation",
}

// Valid reports whether r is a known code.
func (r RefundReason) Valid() bool {
	return r >= ReasonProductReturn && r <= ReasonOther
}

// EncodeRefundReason builds the stored reason string for a refund of
// original. ReasonOther requires free text, which replaces the label.
func EncodeRefundReason(original int64, code RefundReason, text string) (string, error) {
	if !code.Valid() {
		return "", shared.NewValidationError("refund_reason_code", "must be one of: 0, 1, 2, 3")
	}
	label := reasonLabels[code]
	if code == ReasonOther {
		label = strings.TrimSpace(text)
		if label == "" {
			return "", shared.NewValidationError("refund_reason_text", "is required when the reason is other")
		}
	}
	return fmt.Sprintf("Refund Transaction #%d (%s)", original, label), nil
}
