package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/smallbiznis/kasira/internal/catalog/domain"
	checkoutdomain "github.com/smallbiznis/kasira/internal/checkout/domain"
	cyclecountdomain "github.com/smallbiznis/kasira/internal/cyclecount/domain"
	inventorydomain "github.com/smallbiznis/kasira/internal/inventory/domain"
	pricingdomain "github.com/smallbiznis/kasira/internal/pricing/domain"
	purchasingdomain "github.com/smallbiznis/kasira/internal/purchasing/domain"
	reservationdomain "github.com/smallbiznis/kasira/internal/reservation/domain"
	rulesdomain "github.com/smallbiznis/kasira/internal/rules/domain"
	tenantdomain "github.com/smallbiznis/kasira/internal/tenant/domain"
	transferdomain "github.com/smallbiznis/kasira/internal/transfer/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrInternal       = errors.New("internal_error")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	var stockErr *inventorydomain.InsufficientStockError
	if errors.As(err, &stockErr) {
		return http.StatusConflict, errorPayload{
			Type:    "insufficient_stock",
			Message: stockErr.Error(),
		}
	}

	switch {
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, pricingdomain.ErrEmptyCart),
		errors.Is(err, pricingdomain.ErrInvalidQuantity),
		errors.Is(err, pricingdomain.ErrInvalidUnitPrice),
		errors.Is(err, catalogdomain.ErrUnknownVariant),
		errors.Is(err, tenantdomain.ErrInvalidTenant),
		errors.Is(err, checkoutdomain.ErrInvalidCheckout),
		errors.Is(err, checkoutdomain.ErrUnknownPaymentMethod),
		errors.Is(err, checkoutdomain.ErrPaymentMismatch),
		errors.Is(err, inventorydomain.ErrInvalidMovement),
		errors.Is(err, reservationdomain.ErrInvalidReservation),
		errors.Is(err, transferdomain.ErrInvalidTransfer),
		errors.Is(err, purchasingdomain.ErrInvalidOrder),
		errors.Is(err, cyclecountdomain.ErrInvalidCount),
		errors.Is(err, rulesdomain.ErrCouponNotFound),
		errors.Is(err, rulesdomain.ErrCouponNotActive):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, inventorydomain.ErrInsufficientStock),
		errors.Is(err, inventorydomain.ErrReservedExceeded),
		errors.Is(err, reservationdomain.ErrReservationState),
		errors.Is(err, reservationdomain.ErrReservationExpired),
		errors.Is(err, rulesdomain.ErrCouponExhausted),
		errors.Is(err, checkoutdomain.ErrStoreMismatch),
		errors.Is(err, transferdomain.ErrTransferState),
		errors.Is(err, transferdomain.ErrReceiveExceeds),
		errors.Is(err, purchasingdomain.ErrOrderState),
		errors.Is(err, purchasingdomain.ErrReceiveExceeds),
		errors.Is(err, cyclecountdomain.ErrCountState):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, tenantdomain.ErrStoreNotFound),
		errors.Is(err, checkoutdomain.ErrSaleNotFound),
		errors.Is(err, reservationdomain.ErrReservationNotFound),
		errors.Is(err, transferdomain.ErrTransferNotFound),
		errors.Is(err, purchasingdomain.ErrOrderNotFound),
		errors.Is(err, cyclecountdomain.ErrCountNotFound),
		errors.Is(err, cyclecountdomain.ErrLineNotFound),
		errors.Is(err, rulesdomain.ErrRuleNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "empty_cart", "invalid_quantity", "invalid_unit_price", "unknown_variant":
		return "lines"
	case "coupon_not_found", "coupon_not_active":
		return "coupon_code"
	case "unknown_payment_method", "payment_mismatch":
		return "payment"
	case "invalid_tenant":
		return "tenant"
	default:
		if strings.HasPrefix(code, "invalid_") {
			return strings.TrimPrefix(code, "invalid_")
		}
		return ""
	}
}

func validationErrorMessage(code string) string {
	return strings.ReplaceAll(code, "_", " ")
}

// classifyErrorForLog buckets request errors so access logs carry a stable
// (type, code) pair without leaking internals.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	status, payload := mapError(err)
	switch {
	case status >= http.StatusInternalServerError:
		return "internal", payload.Type
	case payload.Type == "validation_error":
		code := "invalid_request"
		if len(payload.Errors) > 0 {
			code = payload.Errors[0].Code
		}
		return "client", code
	default:
		return "client", payload.Type
	}
}
