package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// ProposalCodePattern is the shape of every generated proposal code
var ProposalCodePattern = regexp.MustCompile(`^(A[1-5]|B1)-\d{8}-\d{3}$`)

// TemplateID names one of the proposal templates
type TemplateID string

const (
	TemplatePeakValley TemplateID = "A1"
	TemplateDemand     TemplateID = "A2"
	TemplateEquipment  TemplateID = "A3"
	TemplateVPP        TemplateID = "A4"
	TemplateScheduling TemplateID = "A5"
	TemplateRetrofit   TemplateID = "B1"
)

var TemplateIDs = []TemplateID{
	TemplatePeakValley, TemplateDemand, TemplateEquipment, TemplateVPP, TemplateScheduling, TemplateRetrofit,
}

func ParseTemplateID(s string) (TemplateID, error) {
	for _, id := range TemplateIDs {
		if string(id) == s {
			return id, nil
		}
	}
	return "", UnknownTemplate(s)
}

// ProposalType is A for operational measures, B for measures requiring investment
func (t TemplateID) ProposalType() string {
	if t == TemplateRetrofit {
		return "B"
	}
	return "A"
}

type ProposalStatus string

const (
	ProposalPending   ProposalStatus = "pending"
	ProposalAccepted  ProposalStatus = "accepted"
	ProposalExecuting ProposalStatus = "executing"
	ProposalCompleted ProposalStatus = "completed"
	ProposalRejected  ProposalStatus = "rejected"
	ProposalFailed    ProposalStatus = "failed"
)

type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

type ExecutionResult string

const (
	ResultSuccess ExecutionResult = "success"
	ResultFailed  ExecutionResult = "failed"
)

// Proposal is an energy-saving proposal bundle
type Proposal struct {
	ID                string            `json:"id" gorm:"primaryKey;type:uuid"`
	ProposalCode      string            `json:"proposal_code" gorm:"uniqueIndex;size:32;not null"`
	ProposalType      string            `json:"proposal_type" gorm:"size:1"`
	TemplateID        TemplateID        `json:"template_id" gorm:"size:2;index"`
	TemplateName      string            `json:"template_name" gorm:"size:64"`
	AnalysisStartDate time.Time         `json:"analysis_start_date" gorm:"type:date"`
	AnalysisEndDate   time.Time         `json:"analysis_end_date" gorm:"type:date"`
	CurrentSituation  datatypes.JSONMap `json:"current_situation" gorm:"type:jsonb"`
	TotalBenefit      decimal.Decimal   `json:"total_benefit" gorm:"type:numeric(12,2)"`    // 10k CNY / year
	TotalInvestment   decimal.Decimal   `json:"total_investment" gorm:"type:numeric(12,2)"` // 10k CNY
	Status            ProposalStatus    `json:"status" gorm:"size:16;index"`
	Measures          []Measure         `json:"measures" gorm:"foreignKey:ProposalID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time         `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt         time.Time         `json:"updated_at" gorm:"autoUpdateTime"`
}

// Totals recomputes the header sums from the measures
func (p *Proposal) Totals() (benefit, investment decimal.Decimal) {
	benefit, investment = decimal.Zero, decimal.Zero
	for _, m := range p.Measures {
		benefit = benefit.Add(m.AnnualBenefit)
		investment = investment.Add(m.Investment)
	}
	return benefit, investment
}

// Measure is one regulatory action of a proposal
type Measure struct {
	ID                 string            `json:"id" gorm:"primaryKey;type:uuid"`
	ProposalID         string            `json:"proposal_id" gorm:"type:uuid;index;not null"`
	SortOrder          int               `json:"sort_order"`
	MeasureCode        string            `json:"measure_code" gorm:"uniqueIndex;size:40"`
	RegulationObject   string            `json:"regulation_object" gorm:"size:128"`
	Description        string            `json:"description"`
	CurrentState       datatypes.JSONMap `json:"current_state" gorm:"type:jsonb"`
	TargetState        datatypes.JSONMap `json:"target_state" gorm:"type:jsonb"`
	CalculationFormula string            `json:"calculation_formula" gorm:"type:text"`
	CalculationBasis   string            `json:"calculation_basis" gorm:"type:text"`
	AnnualBenefit      decimal.Decimal   `json:"annual_benefit" gorm:"type:numeric(12,2)"`
	Investment         decimal.Decimal   `json:"investment" gorm:"type:numeric(12,2)"`
	PowerPointID       *string           `json:"power_point_id,omitempty" gorm:"type:uuid"`
	IsSelected         bool              `json:"is_selected"`
	ExecutionStatus    ExecutionStatus   `json:"execution_status" gorm:"size:16"`
	Logs               []ExecutionLog    `json:"logs,omitempty" gorm:"foreignKey:MeasureID;constraint:OnDelete:CASCADE"`
}

// StatePower reads the "power" entry of a state snapshot in kW
func StatePower(state datatypes.JSONMap) (decimal.Decimal, bool) {
	if state == nil {
		return decimal.Zero, false
	}
	raw, ok := state["power"]
	if !ok || raw == nil {
		return decimal.Zero, false
	}
	switch v := raw.(type) {
	case decimal.Decimal:
		return v, true
	case float64:
		return decimal.NewFromFloat(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(v)
		return d, err == nil
	default:
		d, err := decimal.NewFromString(fmt.Sprint(v))
		return d, err == nil
	}
}

// ExecutionLog records one actuation attempt of a measure
type ExecutionLog struct {
	ID                 string            `json:"id" gorm:"primaryKey;type:uuid"`
	MeasureID          string            `json:"measure_id" gorm:"type:uuid;index;not null"`
	ExecutedAt         time.Time         `json:"executed_at"`
	PowerBefore        decimal.Decimal   `json:"power_before" gorm:"type:numeric(12,2)"`
	PowerAfter         decimal.Decimal   `json:"power_after" gorm:"type:numeric(12,2)"`
	PowerSaved         decimal.Decimal   `json:"power_saved" gorm:"type:numeric(12,2)"`
	ExpectedPowerSaved decimal.Decimal   `json:"expected_power_saved" gorm:"type:numeric(12,2)"`
	Result             ExecutionResult   `json:"result" gorm:"size:16"`
	Message            string            `json:"message"`
	ExecutionData      datatypes.JSONMap `json:"execution_data,omitempty" gorm:"type:jsonb"`
}

// ProposalSequence is the per-template per-day counter behind proposal codes
type ProposalSequence struct {
	TemplateID TemplateID `gorm:"primaryKey;size:2"`
	Day        string     `gorm:"primaryKey;size:8"` // YYYYMMDD
	LastValue  int
}

// MaxDailyProposals is the last sequence a proposal code can carry
const MaxDailyProposals = 999

// SequenceExhausted reports that a template has used every code of a day
func SequenceExhausted(t TemplateID, day string) error {
	return Validation("proposal sequence for %s on %s is exhausted (%d per day)", t, day, MaxDailyProposals)
}

// ProposalCode formats the code of the n-th proposal of a template on day
func ProposalCode(t TemplateID, day time.Time, n int) string {
	return fmt.Sprintf("%s-%s-%03d", t, day.Format("20060102"), n)
}

// MeasureCode formats the code of the n-th measure of a proposal
func MeasureCode(proposalCode string, n int) string {
	return fmt.Sprintf("%s-M%03d", proposalCode, n)
}
