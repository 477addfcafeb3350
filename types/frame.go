package types

import "github.com/c360/sensorstream/pkg/timestamp"

// Frame type discriminators used in the "type" field of every wire frame.
const (
	FrameTypeReading    = "reading"
	FrameTypeAlert      = "alert"
	FrameTypeSensorList = "sensor_list"
)

// Frame is a discrete message delivered to subscribers over the persistent
// connection, one JSON-encodable object per frame.
type Frame interface {
	FrameType() string
}

// ReadingFrame is the wire shape of a streamed reading.
type ReadingFrame struct {
	Type        string     `json:"type"`
	SensorID    string     `json:"sensorId"`
	Kind        SensorKind `json:"kind"`
	Value       float64    `json:"value"`
	Unit        string     `json:"unit"`
	TimestampMs int64      `json:"timestampMs"`
}

// FrameType implements Frame.
func (f ReadingFrame) FrameType() string { return FrameTypeReading }

// NewReadingFrame builds the wire frame for a reading.
func NewReadingFrame(r Reading) ReadingFrame {
	return ReadingFrame{
		Type:        FrameTypeReading,
		SensorID:    r.SensorID,
		Kind:        r.Kind,
		Value:       r.Value,
		Unit:        r.Unit,
		TimestampMs: timestamp.ToUnixMs(r.Timestamp),
	}
}

// AlertFrame is the wire shape of a streamed alert.
type AlertFrame struct {
	Type        string     `json:"type"`
	AlertID     string     `json:"alertId"`
	SensorID    string     `json:"sensorId"`
	Rule        Rule       `json:"ruleViolated"`
	Severity    Severity   `json:"severity"`
	State       AlertState `json:"state"`
	FirstSeenMs int64      `json:"firstSeen"`
	LastSeenMs  int64      `json:"lastSeen"`
}

// FrameType implements Frame.
func (f AlertFrame) FrameType() string { return FrameTypeAlert }

// NewAlertFrame builds the wire frame for an alert snapshot.
func NewAlertFrame(a Alert) AlertFrame {
	return AlertFrame{
		Type:        FrameTypeAlert,
		AlertID:     a.ID,
		SensorID:    a.SensorID,
		Rule:        a.Rule,
		Severity:    a.Severity,
		State:       a.State,
		FirstSeenMs: timestamp.ToUnixMs(a.FirstSeen),
		LastSeenMs:  timestamp.ToUnixMs(a.LastSeen),
	}
}

// SensorInfo describes one active sensor in a sensor list frame.
type SensorInfo struct {
	SensorID string     `json:"sensorId"`
	Kind     SensorKind `json:"kind"`
	Unit     string     `json:"unit"`
	Location string     `json:"location,omitempty"`
	Name     string     `json:"name,omitempty"`
}

// SensorListFrame describes the active sensor set. The websocket gateway
// sends one to each client on connect.
type SensorListFrame struct {
	Type    string       `json:"type"`
	Sensors []SensorInfo `json:"sensors"`
}

// FrameType implements Frame.
func (f SensorListFrame) FrameType() string { return FrameTypeSensorList }

// NewSensorListFrame builds a sensor list frame.
func NewSensorListFrame(sensors []SensorInfo) SensorListFrame {
	return SensorListFrame{Type: FrameTypeSensorList, Sensors: sensors}
}
