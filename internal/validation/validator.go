package validation

import (
	"fmt"
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/imrishuroy/go-marketplace-orders/internal/money"
)

// New returns a configured validator that reports json field names and
// runs the struct-level checks of the order payloads.
func New() *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterStructValidation(createOrderStructValidation, CreateOrderRequest{})
	v.RegisterStructValidation(cancelOrderStructValidation, CancelOrderRequest{})
	return v
}

// createOrderStructValidation rejects repeated stores and client totals
// that do not add up.
func createOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateOrderRequest)

	seen := map[string]bool{}
	for _, st := range req.Stores {
		if seen[st.StoreID] {
			sl.ReportError(req.Stores, "stores", "Stores", "unique_store", st.StoreID)
			break
		}
		seen[st.StoreID] = true
	}

	if req.ItemsTotal != nil && req.TotalDeliveryCharge != nil && req.TotalAmount != nil {
		sum := money.Sum(*req.ItemsTotal, *req.TotalDeliveryCharge)
		if money.Differs(sum, *req.TotalAmount) {
			sl.ReportError(*req.TotalAmount, "totalAmount", "TotalAmount", "total_match_parts",
				fmt.Sprintf("%s != %s", money.String(sum), money.String(*req.TotalAmount)))
		}
	}
}

func cancelOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CancelOrderRequest)
	if strings.TrimSpace(req.Reason) == "" {
		sl.ReportError(req.Reason, "reason", "Reason", "required", "")
	}
}
