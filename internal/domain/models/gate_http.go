package models

// Requests for the gate HTTP endpoints. Defined in domain for consistency and reuse.

type ValidateRequest struct {
	Symbol           string   `json:"symbol" validate:"required"`
	Direction        string   `json:"direction" validate:"required,oneof=long short"`
	EntryPrice       float64  `json:"entry_price" validate:"required,gt=0"`
	StopLoss         float64  `json:"stop_loss" validate:"required,gt=0"`
	TakeProfit       float64  `json:"take_profit" validate:"gte=0"`
	RequestedSize    float64  `json:"requested_size" validate:"required,gt=0,lte=1"`
	ConfidenceHint   float64  `json:"confidence_hint" validate:"gte=0,lte=1"`
	HigherTFTrend    string   `json:"higher_tf_trend" validate:"omitempty,oneof=long short"`
	ConfirmingSignal []string `json:"confirming_signals"`
}

type EmotionRequest struct {
	Emotion   string `json:"emotion" validate:"required"`
	Intensity int    `json:"intensity" default:"5" validate:"gte=1,lte=10"`
	Notes     string `json:"notes"`
}

type RegimeSnapshotRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
}

type ValidationsRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	N      int    `query:"n" json:"n" default:"20" validate:"gte=1,lte=500"`
}

type SiphonHistoryRequest struct {
	N     int    `query:"n" json:"n" default:"50" validate:"gte=1,lte=500"`
	Since string `query:"since" json:"since,omitempty"`
}
