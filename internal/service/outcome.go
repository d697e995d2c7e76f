package service

// OutcomeKind classifies how a provider call on the query path ended.
type OutcomeKind int

const (
	// OutcomeOK carries the provider's value.
	OutcomeOK OutcomeKind = iota
	// OutcomeDegraded carries a fallback value; Err records why.
	OutcomeDegraded
	// OutcomeFatal ends the request; Value is the zero value.
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeDegraded:
		return "degraded"
	case OutcomeFatal:
		return "fatal"
	}
	return "unknown"
}

type Outcome[T any] struct {
	Kind  OutcomeKind
	Value T
	Err   error
}

func okOutcome[T any](v T) Outcome[T] {
	return Outcome[T]{Kind: OutcomeOK, Value: v}
}

func degradedOutcome[T any](fallback T, err error) Outcome[T] {
	return Outcome[T]{Kind: OutcomeDegraded, Value: fallback, Err: err}
}

func fatalOutcome[T any](err error) Outcome[T] {
	return Outcome[T]{Kind: OutcomeFatal, Err: err}
}
