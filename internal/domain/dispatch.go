package domain

import "time"

// AlertLevel grades how close the predicted demand is to the target
type AlertLevel string

const (
	AlertNormal    AlertLevel = "normal"    // < 85%
	AlertAttention AlertLevel = "attention" // 85-90%
	AlertWarning   AlertLevel = "warning"   // 90-95%
	AlertCritical  AlertLevel = "critical"  // 95-100%
	AlertExceeded  AlertLevel = "exceeded"  // >= 100%
)

func ParseAlertLevel(s string) (AlertLevel, error) {
	switch AlertLevel(s) {
	case AlertNormal, AlertAttention, AlertWarning, AlertCritical, AlertExceeded:
		return AlertLevel(s), nil
	}
	return "", Validation("unknown alert level %q", s)
}

// Triggers reports whether the level calls for automatic adjustment
func (l AlertLevel) Triggers() bool {
	return l == AlertCritical || l == AlertExceeded
}

type AdjustmentAction string

const (
	ActionCurtail   AdjustmentAction = "curtail"
	ActionDischarge AdjustmentAction = "discharge"
	ActionShift     AdjustmentAction = "shift"
	ActionRestore   AdjustmentAction = "restore"
)

func ParseAdjustmentAction(s string) (AdjustmentAction, error) {
	switch AdjustmentAction(s) {
	case ActionCurtail, ActionDischarge, ActionShift, ActionRestore:
		return AdjustmentAction(s), nil
	}
	return "", Validation("unknown adjustment action %q", s)
}

type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

type CommandStatus string

const (
	CommandPending   CommandStatus = "pending"
	CommandExecuting CommandStatus = "executing"
	CommandCompleted CommandStatus = "completed"
	CommandFailed    CommandStatus = "failed"
)

// PowerReading is one sample of the site active power
type PowerReading struct {
	Timestamp time.Time `json:"timestamp"`
	Power     float64   `json:"power"` // kW
	Source    string    `json:"source,omitempty"`
}

// CurtailableDevice is a load the controller may reduce on its own
type CurtailableDevice struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	RatedPower   float64 `json:"rated_power"`   // kW
	CurtailRatio float64 `json:"curtail_ratio"` // 0..1
	Priority     int     `json:"priority"`      // 1 (first) .. 10
}

func (d *CurtailableDevice) Validate() error {
	if d.ID == "" {
		return Validation("curtailable device id is required")
	}
	if d.RatedPower < 0 {
		return Validation("curtailable device %s has negative rated power", d.ID)
	}
	if d.CurtailRatio < 0 || d.CurtailRatio > 1 {
		return Validation("curtail ratio of %s must be within 0..1, got %v", d.ID, d.CurtailRatio)
	}
	if d.Priority < 1 || d.Priority > 10 {
		return Validation("priority of %s must be within 1..10, got %d", d.ID, d.Priority)
	}
	return nil
}

// Prediction is the forecast of the current 15-minute demand window
type Prediction struct {
	Timestamp        time.Time  `json:"timestamp"`
	CurrentWindowAvg float64    `json:"current_window_avg"`
	PredictedAvg     float64    `json:"predicted_window_avg"`
	TimeRemaining    int        `json:"time_remaining"` // seconds
	DemandTarget     float64    `json:"demand_target"`
	Utilization      float64    `json:"utilization"` // ratio, 1.0 = at target
	AlertLevel       AlertLevel `json:"alert_level"`
	Trend            Trend      `json:"trend"`
	RiskScore        float64    `json:"risk_score"` // 0..100
}

// AdjustmentCommand asks a resource to change its power for a while
type AdjustmentCommand struct {
	ID          string           `json:"id"`
	Action      AdjustmentAction `json:"action"`
	DeviceID    string           `json:"device_id,omitempty"`
	DeviceName  string           `json:"device_name"`
	PowerChange float64          `json:"power_change"` // kW, positive means reduction
	Duration    int              `json:"duration"`     // seconds
	Priority    int              `json:"priority"`
	Reason      string           `json:"reason"`
	Manual      bool             `json:"manual"`
	Status      CommandStatus    `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	ExecutedAt  *time.Time       `json:"executed_at,omitempty"`
}

// DispatchStatus is a point-in-time view of the controller
type DispatchStatus struct {
	DemandTarget       float64             `json:"demand_target"`
	LastPrediction     *Prediction         `json:"last_prediction,omitempty"`
	ActiveCommands     []AdjustmentCommand `json:"active_commands"`
	HistoryCount       int                 `json:"history_count"`
	ReadingCount       int                 `json:"reading_count"`
	StorageAvailable   float64             `json:"storage_available"`
	StorageSOC         float64             `json:"storage_soc"`
	CurtailableDevices int                 `json:"curtailable_devices_count"`
}
