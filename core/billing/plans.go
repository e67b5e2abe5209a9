package billing

import "time"

// Features metered by the subscription plans.
const (
	FeatureCourseGeneration = "courseGeneration"
	FeatureCoaching         = "coaching"
	FeatureInterviewPrep    = "interviewPrep"
	FeatureAssistant        = "assistant"
	FeatureTextToSpeech     = "textToSpeech"
)

// Plan IDs
const (
	PlanFree = "free"
	PlanPro  = "pro"
	PlanTeam = "team"
)

// Unlimited marks a feature without monthly limit.
const Unlimited = -1

const billingPeriod = 30 * 24 * time.Hour

type Plan struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Price    int64          `json:"price"` // in IDR, per billing period
	Currency string         `json:"currency"`
	Limits   map[string]int `json:"limits"` // monthly uses per feature
}

func (p Plan) IsFree() bool { return p.Price == 0 }

// Limit returns the monthly limit of a feature and whether the plan knows it.
func (p Plan) Limit(feature string) (int, bool) {
	limit, ok := p.Limits[feature]
	return limit, ok
}

var plans = []Plan{
	{
		ID: PlanFree, Name: "Free", Currency: "IDR",
		Limits: map[string]int{
			FeatureCourseGeneration: 2,
			FeatureCoaching:         20,
			FeatureInterviewPrep:    5,
			FeatureAssistant:        30,
			FeatureTextToSpeech:     30,
		},
	},
	{
		ID: PlanPro, Name: "Pro", Price: 99000, Currency: "IDR",
		Limits: map[string]int{
			FeatureCourseGeneration: 30,
			FeatureCoaching:         500,
			FeatureInterviewPrep:    100,
			FeatureAssistant:        1000,
			FeatureTextToSpeech:     1000,
		},
	},
	{
		ID: PlanTeam, Name: "Team", Price: 499000, Currency: "IDR",
		Limits: map[string]int{
			FeatureCourseGeneration: Unlimited,
			FeatureCoaching:         Unlimited,
			FeatureInterviewPrep:    Unlimited,
			FeatureAssistant:        Unlimited,
			FeatureTextToSpeech:     Unlimited,
		},
	},
}

// Plans returns the available plans, cheapest first.
func Plans() []Plan {
	return append([]Plan(nil), plans...)
}

func GetPlan(id string) (Plan, bool) {
	for _, p := range plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}
