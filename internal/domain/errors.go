package domain

import "errors"

var (
	ErrNotListed           = errors.New("token not listed")
	ErrAlreadyListed       = errors.New("token already listed")
	ErrInvalidPriceRange   = errors.New("invalid price range")
	ErrStaleRate           = errors.New("exchange rate is stale")
	ErrPriceBelowMinimum   = errors.New("price below market minimum")
	ErrIncorrectPayment    = errors.New("payment does not match price")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrTransferFailed      = errors.New("transfer failed")
	ErrOverflow            = errors.New("arithmetic overflow")
	ErrReentrantCall       = errors.New("reentrant call")
	ErrLockHeld            = errors.New("lock already held")
)
