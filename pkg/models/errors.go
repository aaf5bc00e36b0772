package models

import "errors"

var (
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrEmptyQuery          = errors.New("no input provided")
	ErrInvalidField        = errors.New("invalid customer field")
)
