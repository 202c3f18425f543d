package paypal

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/lms/internal/payment/domain"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type purchaseUnitRequest struct {
	Amount      money  `json:"amount"`
	Description string `json:"description,omitempty"`
	CustomID    string `json:"custom_id,omitempty"`
}

type createOrderRequest struct {
	Intent        string                `json:"intent"`
	PurchaseUnits []purchaseUnitRequest `json:"purchase_units"`
}

type captureResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	CustomID string `json:"custom_id"`
	Amount   *money `json:"amount"`
}

type purchaseUnitResponse struct {
	CustomID string `json:"custom_id"`
	Amount   *money `json:"amount"`
	Payments struct {
		Captures []captureResponse `json:"captures"`
	} `json:"payments"`
}

type orderResponse struct {
	ID            string                 `json:"id"`
	Status        string                 `json:"status"`
	PurchaseUnits []purchaseUnitResponse `json:"purchase_units"`
}

// terms reads the first purchase unit. A capture response may only carry
// custom_id and amount on the capture itself, so those fill the gaps.
func (o orderResponse) terms() paymentdomain.Terms {
	var t paymentdomain.Terms
	if len(o.PurchaseUnits) == 0 {
		return t
	}
	unit := o.PurchaseUnits[0]
	t.CustomID = strings.TrimSpace(unit.CustomID)
	amount := unit.Amount
	if len(unit.Payments.Captures) > 0 {
		c := unit.Payments.Captures[0]
		if t.CustomID == "" {
			t.CustomID = strings.TrimSpace(c.CustomID)
		}
		if amount == nil {
			amount = c.Amount
		}
	}
	if amount != nil {
		if v, err := decimal.NewFromString(strings.TrimSpace(amount.Value)); err == nil {
			t.Amount = v
			t.Currency = strings.ToUpper(strings.TrimSpace(amount.CurrencyCode))
		}
	}
	return t
}

type errorResponse struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	DebugID string `json:"debug_id"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`

	// oauth endpoints
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (e errorResponse) hasIssue(issue string) bool {
	for _, detail := range e.Details {
		if strings.EqualFold(detail.Issue, issue) {
			return true
		}
	}
	return false
}

func (e errorResponse) summary(status int) string {
	switch {
	case len(e.Details) > 0 && e.Details[0].Issue != "":
		return fmt.Sprintf("status %d %s", status, e.Details[0].Issue)
	case e.Name != "":
		return fmt.Sprintf("status %d %s", status, e.Name)
	case e.Error != "":
		return fmt.Sprintf("status %d %s", status, e.Error)
	default:
		return fmt.Sprintf("status %d", status)
	}
}
