package types

import "fmt"

// Anomaly is the detector's classification of one reading.
type Anomaly uint8

const (
	AnomalyNormal Anomaly = iota
	AnomalyOutOfRange
	AnomalySpike
	AnomalyStuck
	AnomalyNoisy
)

var anomalyLabels = [...]string{
	AnomalyNormal:     "Normal",
	AnomalyOutOfRange: "Out-of-Range",
	AnomalySpike:      "Spike",
	AnomalyStuck:      "Stuck",
	AnomalyNoisy:      "Noisy",
}

// Anomalies lists every Anomaly in declaration order.
var Anomalies = []Anomaly{AnomalyNormal, AnomalyOutOfRange, AnomalySpike, AnomalyStuck, AnomalyNoisy}

func (a Anomaly) String() string {
	if int(a) < len(anomalyLabels) {
		return anomalyLabels[a]
	}
	return fmt.Sprintf("Anomaly(%d)", uint8(a))
}

// MarshalText implements encoding.TextMarshaler.
func (a Anomaly) MarshalText() ([]byte, error) {
	if int(a) >= len(anomalyLabels) {
		return nil, fmt.Errorf("types: invalid anomaly %d", uint8(a))
	}
	return []byte(anomalyLabels[a]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Anomaly) UnmarshalText(b []byte) error {
	v, err := ParseAnomaly(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// ParseAnomaly maps a label such as "Out-of-Range" back to its Anomaly.
func ParseAnomaly(s string) (Anomaly, error) {
	for i, l := range anomalyLabels {
		if l == s {
			return Anomaly(i), nil
		}
	}
	return 0, fmt.Errorf("types: unknown anomaly %q", s)
}

// AlertLevel is the operator-facing alert derived for one reading.
type AlertLevel uint8

const (
	AlertNormal AlertLevel = iota
	AlertWarning
	AlertCritical
)

var alertLabels = [...]string{
	AlertNormal:   "NORMAL",
	AlertWarning:  "WARNING",
	AlertCritical: "CRITICAL",
}

// AlertLevels lists every AlertLevel from least to most severe.
var AlertLevels = []AlertLevel{AlertNormal, AlertWarning, AlertCritical}

func (l AlertLevel) String() string {
	if int(l) < len(alertLabels) {
		return alertLabels[l]
	}
	return fmt.Sprintf("AlertLevel(%d)", uint8(l))
}

// MarshalText implements encoding.TextMarshaler.
func (l AlertLevel) MarshalText() ([]byte, error) {
	if int(l) >= len(alertLabels) {
		return nil, fmt.Errorf("types: invalid alert level %d", uint8(l))
	}
	return []byte(alertLabels[l]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *AlertLevel) UnmarshalText(b []byte) error {
	v, err := ParseAlertLevel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// ParseAlertLevel maps "NORMAL", "WARNING" or "CRITICAL" to its AlertLevel.
func ParseAlertLevel(s string) (AlertLevel, error) {
	for i, l := range alertLabels {
		if l == s {
			return AlertLevel(i), nil
		}
	}
	return 0, fmt.Errorf("types: unknown alert level %q", s)
}

// Maintenance is the recalibration recommendation for one reading.
type Maintenance uint8

const (
	MaintenanceNone Maintenance = iota
	MaintenanceMonitor
	MaintenanceRecalibrate
)

var maintenanceLabels = [...]string{
	MaintenanceNone:        "No action needed",
	MaintenanceMonitor:     "Monitor closely, recalibrate soon",
	MaintenanceRecalibrate: "Recalibrate within 1 week",
}

// Maintenances lists every Maintenance from least to most urgent.
var Maintenances = []Maintenance{MaintenanceNone, MaintenanceMonitor, MaintenanceRecalibrate}

func (m Maintenance) String() string {
	if int(m) < len(maintenanceLabels) {
		return maintenanceLabels[m]
	}
	return fmt.Sprintf("Maintenance(%d)", uint8(m))
}

// MarshalText implements encoding.TextMarshaler.
func (m Maintenance) MarshalText() ([]byte, error) {
	if int(m) >= len(maintenanceLabels) {
		return nil, fmt.Errorf("types: invalid maintenance %d", uint8(m))
	}
	return []byte(maintenanceLabels[m]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Maintenance) UnmarshalText(b []byte) error {
	v, err := ParseMaintenance(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ParseMaintenance maps a recommendation label back to its Maintenance.
func ParseMaintenance(s string) (Maintenance, error) {
	for i, l := range maintenanceLabels {
		if l == s {
			return Maintenance(i), nil
		}
	}
	return 0, fmt.Errorf("types: unknown maintenance %q", s)
}
