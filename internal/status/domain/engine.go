package status

import "strings"

// Input is everything the engine needs for one device in one cycle.
type Input struct {
	Current Status
	Reason  string
	Power   float64
	Night   bool
	// CriticalCode is the first fault code of severity critical, if any. It is
	// only consulted in the day window with zero power.
	CriticalCode string
}

// Result is the engine's decision.
type Result struct {
	Status Status
	Reason string
}

// Changed reports whether the result differs from the stored status or reason.
func (r Result) Changed(current Status, reason string) bool {
	return r.Status != current || r.Reason != reason
}

// NeedsFaultLookup reports whether the engine will consult fault codes.
func NeedsFaultLookup(night bool, power float64) bool {
	return !night && power <= 0
}

// Transition applies the day or night transition table.
func Transition(in Input) Result {
	current, ok := ParseStatus(string(in.Current))
	if !ok {
		current = StatusHealthy
	}
	producing := in.Power > 0

	if in.Night {
		switch current {
		case StatusFault, StatusDormant:
			if producing {
				return Result{Status: StatusHealthy}
			}
			return Result{Status: current, Reason: in.Reason}
		default:
			if producing {
				return Result{Status: StatusHealthy, Reason: in.Reason}
			}
			return Result{Status: StatusDormant, Reason: ReasonNightNoProduction}
		}
	}

	if producing {
		return Result{Status: StatusHealthy}
	}
	if code := strings.TrimSpace(in.CriticalCode); code != "" {
		return Result{Status: StatusFault, Reason: ErrorCodeReason(code)}
	}
	return Result{Status: StatusFault, Reason: ReasonNoProduction}
}

// FaultEvent is a fault or error message reported by the device provider.
type FaultEvent struct {
	Code string
}

// IsCriticalColour reports whether a severity colour means critical.
func IsCriticalColour(colour string) bool {
	switch strings.ToLower(strings.TrimSpace(colour)) {
	case "red", "critical":
		return true
	default:
		return false
	}
}

// FirstCriticalCode returns the first event, in provider order, whose code maps to
// a critical colour.
func FirstCriticalCode(events []FaultEvent, colours map[string]string) (string, bool) {
	for _, event := range events {
		if event.Code == "" {
			continue
		}
		if IsCriticalColour(colours[event.Code]) {
			return event.Code, true
		}
	}
	return "", false
}
