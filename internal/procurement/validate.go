package procurement

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-po/internal/shared"
)

// LineInput describes an ordered line.
type LineInput struct {
	ProductID        string          `json:"productId" validate:"required"`
	ProductName      string          `json:"productName" validate:"required"`
	VariantID        string          `json:"variantId"`
	Size             string          `json:"size"`
	Unit             string          `json:"unit"`
	Quantity         int64           `json:"quantity" validate:"gt=0"`
	UnitPrice        decimal.Decimal `json:"unitPrice"`
	RestockRequestID string          `json:"restockRequestId"`
}

// CreatePOInput is the payload of CreatePO.
type CreatePOInput struct {
	SupplierID   string      `json:"supplierId" validate:"required"`
	SupplierName string      `json:"supplierName" validate:"required"`
	Items        []LineInput `json:"items" validate:"min=1,dive"`
	DeliveryDate time.Time   `json:"deliveryDate"`
	PaymentTerms string      `json:"paymentTerms"`
	Notes        string      `json:"notes"`
}

// UpdatePOInput carries the fields a client may change. Nil means unchanged.
type UpdatePOInput struct {
	SupplierID   *string      `json:"supplierId"`
	SupplierName *string      `json:"supplierName"`
	Items        *[]LineInput `json:"items"`
	DeliveryDate *time.Time   `json:"deliveryDate"`
	PaymentTerms *string      `json:"paymentTerms"`
	Notes        *string      `json:"notes"`
}

// protectedFields are immutable after creation and silently dropped from updates.
var protectedFields = []string{"id", "poNumber", "createdAt", "createdBy", "status", "receivingStatus", "approvalId", "totalAmount"}

// StripProtected removes immutable keys from a raw update payload.
func StripProtected(payload map[string]any) map[string]any {
	for _, k := range protectedFields {
		delete(payload, k)
	}
	return payload
}

func validateCreate(actor shared.CurrentActor, in CreatePOInput) error {
	verr := &shared.ValidationError{}
	if err := shared.ValidateStruct(in, verr); err != nil {
		return err
	}
	validateLinePrices(in.Items, verr)
	if in.DeliveryDate.IsZero() {
		verr.Add("deliveryDate", "is required")
	}
	if strings.TrimSpace(actor.ID) == "" {
		verr.Add("createdBy.id", "is required")
	}
	return verr.Err()
}

func validateUpdate(in UpdatePOInput) error {
	verr := &shared.ValidationError{}
	if in.SupplierID != nil && strings.TrimSpace(*in.SupplierID) == "" {
		verr.Add("supplierId", "is required")
	}
	if in.SupplierName != nil && strings.TrimSpace(*in.SupplierName) == "" {
		verr.Add("supplierName", "is required")
	}
	if in.DeliveryDate != nil && in.DeliveryDate.IsZero() {
		verr.Add("deliveryDate", "is required")
	}
	if in.Items != nil {
		wrapper := struct {
			Items []LineInput `json:"items" validate:"min=1,dive"`
		}{Items: *in.Items}
		if err := shared.ValidateStruct(wrapper, verr); err != nil {
			return err
		}
		validateLinePrices(*in.Items, verr)
	}
	return verr.Err()
}

func validateLinePrices(items []LineInput, verr *shared.ValidationError) {
	for i, item := range items {
		if !item.UnitPrice.IsPositive() {
			verr.Add(fmt.Sprintf("items[%d].unitPrice", i), "must be greater than 0")
		}
	}
}

// headerOnly reports whether an update touches only fields editable after submission.
func (in UpdatePOInput) headerOnly() bool {
	return in.SupplierID == nil && in.SupplierName == nil && in.Items == nil
}

func (in UpdatePOInput) empty() bool {
	return in.headerOnly() && in.DeliveryDate == nil && in.PaymentTerms == nil && in.Notes == nil
}
