package retry

import "strings"

// retryableMarkers are the substrings (case-sensitive, matching the Skill
// Runtime's provider error text) that mark a Skill inference failure as
// transient rather than fatal.
var retryableMarkers = []string{
	"timed out",
	"failed rc=1",
	"no json object found",
	"rate limit",
}

// IsRetryableSkillError reports whether err's message matches one of the
// Skill Runtime's retryable-error markers. A nil error is not retryable.
// Errors already wrapped with Permanent never match, even if their text
// would otherwise look retryable, since an explicit Permanent wrap is a
// stronger signal than a substring match.
func IsRetryableSkillError(err error) bool {
	if err == nil || IsPermanent(err) {
		return false
	}
	text := err.Error()
	for _, marker := range retryableMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// WrapSkillError classifies err as retryable or permanent based on the
// Skill Runtime's marker set, wrapping non-matching errors with Permanent
// so a subsequent retry.Do call stops immediately instead of burning
// attempts on an error the markers say will never clear.
func WrapSkillError(err error) error {
	if err == nil {
		return nil
	}
	if IsRetryableSkillError(err) {
		return err
	}
	return Permanent(err)
}
