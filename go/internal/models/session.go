package models

// SessionMode defines the mode of a ranking session.
type SessionMode string

const (
	ModeReviewing            SessionMode = "REVIEWING"
	ModeTweaking             SessionMode = "TWEAKING"
	ModeAwaitingTweakConfirm SessionMode = "AWAITING_TWEAK_CONFIRM"
	ModeFinalized            SessionMode = "FINALIZED"
)
