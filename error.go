package rootchain

import (
	"errors"
)

var (
	ErrTooManyReaders   = errors.New("too many concurrent readers")
	ErrVersionNotFound  = errors.New("version not present in chain")
	ErrAppendBufferFull = errors.New("append buffer full, merge required")
)
