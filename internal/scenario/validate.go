package scenario

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/holiman/uint256"

	"clamm/internal/model"
)

// required lists, per operation, the JSON fields that must be present.
var required = map[string][]string{
	model.OpFund:             {"asset", "account", "amount"},
	model.OpCreatePool:       {"token0", "token1", "fee"},
	model.OpInitialize:       {"token0", "token1", "fee", "sqrt_price_x96"},
	model.OpMint:             {"caller", "token0", "token1", "fee", "tick_lower", "tick_upper"},
	model.OpAddLiquidity:     {"caller", "token_id"},
	model.OpRemoveLiquidity:  {"caller", "token_id", "liquidity"},
	model.OpCollect:          {"caller", "token_id"},
	model.OpBurn:             {"caller", "token_id"},
	model.OpTransferPosition: {"caller", "token_id", "to"},
	model.OpSwapSingle:       {"caller", "token_in", "token_out", "fee", "amount_in"},
	model.OpSwapMulti:        {"caller", "path", "amount_in"},
	model.OpQuoteSingle:      {"token_in", "token_out", "fee", "amount_in"},
	model.OpQuoteMulti:       {"path", "amount_in"},
	model.OpFlash:            {"caller", "token0", "token1", "fee"},
}

func present(op model.Operation, field string) bool {
	switch field {
	case "asset":
		return op.Asset != ""
	case "account":
		return op.Account != ""
	case "amount":
		return op.Amount != ""
	case "token0":
		return op.Token0 != ""
	case "token1":
		return op.Token1 != ""
	case "fee":
		return op.Fee != 0
	case "sqrt_price_x96":
		return op.SqrtPriceX96 != ""
	case "caller":
		return op.Caller != ""
	case "tick_lower":
		return op.TickLower != nil
	case "tick_upper":
		return op.TickUpper != nil
	case "token_id":
		return op.TokenID != 0
	case "liquidity":
		return op.Liquidity != ""
	case "to":
		return op.To != ""
	case "token_in":
		return op.TokenIn != ""
	case "token_out":
		return op.TokenOut != ""
	case "amount_in":
		return op.AmountIn != ""
	case "path":
		return op.Path != ""
	}
	return false
}

func validateOperation(sl validator.StructLevel) {
	op := sl.Current().Interface().(model.Operation)
	for _, field := range required[op.Op] {
		if !present(op, field) {
			sl.ReportError("", field, field, "required_for_op", op.Op)
		}
	}
	switch op.Op {
	case model.OpMint:
		if op.Amount0Desired == "" && op.Amount1Desired == "" {
			sl.ReportError(op.Amount0Desired, "amount0_desired", "Amount0Desired", "required_for_op", op.Op)
		}
	case model.OpFlash:
		if op.Amount0 == "" && op.Amount1 == "" {
			sl.ReportError(op.Amount0, "amount0", "Amount0", "required_for_op", op.Op)
		}
	}
}

func isUint256(fl validator.FieldLevel) bool {
	_, err := uint256.FromDecimal(fl.Field().String())
	return err == nil
}

// Validator checks operations before they reach the engine.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("uint256", isUint256); err != nil {
		panic(fmt.Sprintf("register uint256 validation: %v", err))
	}
	v.RegisterStructValidation(validateOperation, model.Operation{})
	return &Validator{v: v}
}

// Validate returns a single error naming every failed field.
func (v *Validator) Validate(op model.Operation) error {
	err := v.v.Struct(op)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid %s operation: %s", op.Op, strings.Join(msgs, "; "))
}
