package schemas

// AuthStage is a state of the login state machine.
type AuthStage string

const (
	AuthNotStarted         AuthStage = "NOT_STARTED"
	AuthAwaitingIdentifier AuthStage = "AWAITING_IDENTIFIER"
	AuthAwaitingPassword   AuthStage = "AWAITING_PASSWORD"
	AuthRedirecting        AuthStage = "REDIRECTING"
	AuthDone               AuthStage = "DONE"
	AuthFailed             AuthStage = "FAILED"
)

// Terminal reports whether no further transition is possible.
func (s AuthStage) Terminal() bool {
	return s == AuthDone || s == AuthFailed
}

// AuthSession tracks the login sub-flow. It is discarded once navigation settles.
type AuthSession struct {
	URL   string    `json:"url"`
	Stage AuthStage `json:"stage"`
}
