package domain

type BillingPlan string

const (
	PlanBasic    BillingPlan = "Basic"
	PlanAdvanced BillingPlan = "Advanced"
	PlanPremium  BillingPlan = "Premium"
)

func (p BillingPlan) Valid() bool {
	switch p {
	case PlanBasic, PlanAdvanced, PlanPremium:
		return true
	}
	return false
}

type BillingToken struct {
	Token              string      `json:"token"`
	RegardingProjectID string      `json:"regardingProjectId"`
	Plan               BillingPlan `json:"plan"`
}

type AddTokenRequest struct {
	OwnedBy string      `json:"ownedBy"`
	Plan    BillingPlan `json:"plan"`
}

func (r AddTokenRequest) Validate() error {
	if err := required("ownedBy", r.OwnedBy); err != nil {
		return err
	}
	if !r.Plan.Valid() {
		return &ValidationError{Field: "plan", Reason: "must be Basic, Advanced or Premium"}
	}
	return nil
}

type GetAllTokensOfUserResult struct {
	Tokens []BillingToken `json:"tokens"`
}
