package models

// ActuationState is the controller's bookkeeping of what it has told the device
type ActuationState struct {
	LastSentNormalcy *bool `json:"last_sent_normalcy,omitempty"` // nil until the first level signal
	SuctionOn        bool  `json:"suction_on"`                   // last commanded pump state
	WritePending     bool  `json:"write_pending"`
	Transmissions    int   `json:"transmissions"`
}
