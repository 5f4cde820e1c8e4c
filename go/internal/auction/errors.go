package auction

import "errors"

// Expected failures. Operations that return one of these have not mutated anything.
var (
	ErrAuctionNotFound     = errors.New("auction not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrBotNotFound         = errors.New("bot not found")
	ErrWrongStatus         = errors.New("auction is not in the required status")
	ErrInsufficientBalance = errors.New("insufficient bid balance")
	ErrDuplicatePrebid     = errors.New("user already holds a prebid on this auction")
	ErrBotNotAssigned      = errors.New("bot is not assigned to this auction")
	ErrInvalidRequest      = errors.New("invalid request")
)

var validationErrors = []error{
	ErrAuctionNotFound,
	ErrUserNotFound,
	ErrBotNotFound,
	ErrWrongStatus,
	ErrInsufficientBalance,
	ErrDuplicatePrebid,
	ErrBotNotAssigned,
	ErrInvalidRequest,
}

// IsValidation reports whether err is an expected, caller-facing failure
// rather than an infrastructure error.
func IsValidation(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err names a missing auction, user or bot.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAuctionNotFound) || errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrBotNotFound)
}
