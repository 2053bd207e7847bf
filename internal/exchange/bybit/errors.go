package bybit

import (
	"errors"
	"fmt"
)

// VenueError is a non-zero ret_code reported by the exchange inside an
// otherwise well-formed response envelope.
type VenueError struct {
	Code int
	Msg  string
}

func (e *VenueError) Error() string {
	return fmt.Sprintf("bybit ret_code %d: %s", e.Code, e.Msg)
}

// AsVenueError unwraps err into a VenueError if one is present.
func AsVenueError(err error) (*VenueError, bool) {
	var ve *VenueError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// Codes the exchange returns when a setup call asks for a state that is
// already in effect. These are success-equivalent.
var benignCodes = map[int]struct{}{
	130056: {}, // position mode / leverage not modified
	34036:  {}, // linear leverage not modified
}

// IsBenign reports whether err is a venue rejection that means the
// requested state was already set.
func IsBenign(err error) bool {
	ve, ok := AsVenueError(err)
	if !ok {
		return false
	}
	_, benign := benignCodes[ve.Code]
	return benign
}

var (
	// ErrUnknownSymbol means the configured symbol was not found in the
	// exchange instrument list. Startup cannot proceed past it.
	ErrUnknownSymbol = errors.New("symbol not found on exchange")

	// ErrIncompleteSnapshot means one of the concurrent snapshot fetches
	// failed, so no coherent account view could be assembled.
	ErrIncompleteSnapshot = errors.New("incomplete account snapshot")
)
