package race

import "errors"

// Rejections returned by race operations. A rejected operation has no side effects.
var (
	ErrSessionFull     = errors.New("session full")
	ErrAlreadyJoined   = errors.New("already joined")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidSequence = errors.New("invalid sequence")
	ErrNotReady        = errors.New("not ready")
	ErrOutOfOrder      = errors.New("out of order")
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnauthenticated = errors.New("unauthenticated")
)

// ErrorKind returns the name of the rejection wrapped in err, or "" for infrastructure failures.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrSessionFull):
		return "SessionFull"
	case errors.Is(err, ErrAlreadyJoined):
		return "AlreadyJoined"
	case errors.Is(err, ErrForbidden):
		return "Forbidden"
	case errors.Is(err, ErrInvalidSequence):
		return "InvalidSequence"
	case errors.Is(err, ErrNotReady):
		return "NotReady"
	case errors.Is(err, ErrOutOfOrder):
		return "OutOfOrder"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrInvalidArgument):
		return "InvalidArgument"
	case errors.Is(err, ErrUnauthenticated):
		return "Unauthenticated"
	default:
		return ""
	}
}
