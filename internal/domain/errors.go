package domain

import "errors"

// Domain errors represent error conditions in the propship domain.
// They are returned by the public API and can be checked with errors.Is.
var (
	// ErrAlreadyRunning is returned when Start() is called on a running instance.
	ErrAlreadyRunning = errors.New("propship: already running")

	// ErrNotRunning is returned when Stop() is called on a stopped instance.
	ErrNotRunning = errors.New("propship: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("propship: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("propship: invalid configuration")

	// ErrMissingFilename is returned when an envelope has no usable filename marker.
	ErrMissingFilename = errors.New("propship: missing filename marker")

	// ErrInvalidFilename is returned when a filename sanitizes to a name that
	// cannot be stored (empty, "." or "..").
	ErrInvalidFilename = errors.New("propship: invalid filename")

	// ErrMalformedAck is returned for acknowledgment lines that are not filename=status.
	ErrMalformedAck = errors.New("propship: malformed acknowledgment")

	// ErrAckTimeout is returned when no matching acknowledgment arrived in time.
	ErrAckTimeout = errors.New("propship: acknowledgment timeout")

	// ErrWatchInvalid is returned when the directory watch can no longer deliver events.
	ErrWatchInvalid = errors.New("propship: directory watch no longer valid")

	// ErrUnsupportedVersion is returned when an envelope carries an unknown wire version.
	ErrUnsupportedVersion = errors.New("propship: unsupported envelope version")

	// ErrEnvelopeTooLarge is returned when an envelope frame exceeds the size limit.
	ErrEnvelopeTooLarge = errors.New("propship: envelope too large")

	// ErrAlreadyPending is returned when a push-mode wait is registered twice for one filename.
	ErrAlreadyPending = errors.New("propship: transmission already pending")
)
