package protocol

import "errors"

// ErrIntegrity reports a record whose declared segment lengths do not match
// its actual length. It indicates version skew between backend and decoder
// and must abort the step.
var ErrIntegrity = errors.New("protocol integrity violation")
