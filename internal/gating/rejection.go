package gating

import "github.com/wangqiang-666/ETH-sub009/internal/model"

// Code is a typed rejection/validation code from spec §7.
type Code string

const (
	CodeInvalidRequestBody  Code = "INVALID_REQUEST_BODY"
	CodeInvalidDirection    Code = "INVALID_DIRECTION"
	CodeInvalidPriceOrdering Code = "INVALID_PRICE_ORDERING"

	CodeCooldownSameDirection Code = "COOLDOWN_SAME_DIRECTION"
	CodeCooldownOpposite      Code = "COOLDOWN_OPPOSITE"
	CodeCooldownGlobal        Code = "COOLDOWN_GLOBAL"
	CodeHourlyCap             Code = "HOURLY_CAP"
	CodeDuplicateRecommendation Code = "DUPLICATE_RECOMMENDATION"
	CodeMTFConsistency        Code = "MTF_CONSISTENCY"
	CodeOppositeConstraint    Code = "OPPOSITE_CONSTRAINT"
	CodeExposureCap           Code = "EXPOSURE_CAP"
)

// Rejection is the typed outcome of a failed rule evaluation; Detail
// carries only the fields relevant to Code, per the §9 tagged-variant
// redesign note.
type Rejection struct {
	Code   Code
	Reason string
	Detail model.StepDetail
}

func (r *Rejection) Error() string {
	return string(r.Code) + ": " + r.Reason
}
