package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldRequestID = "request_id"
	FieldJobID     = "job_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Domain fields
	FieldStationID = "station_id"
	FieldAreaID    = "area_id"
	FieldProgramID = "program_id"
	FieldMode      = "mode"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Network fields
	FieldURL  = "url"
	FieldAddr = "addr"
)
