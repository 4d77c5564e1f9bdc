package versions

import "github.com/Masterminds/semver/v3"

// IsNewer reports whether candidate is a strictly later release than current.
// Development builds and versions that are not valid semver are never newer,
// and a development build is never older than anything.
func IsNewer(candidate, current string) bool {
	if candidate == "" || candidate == DevVersion || current == DevVersion {
		return false
	}

	candidateSemver, err := semver.NewVersion(candidate)
	if err != nil {
		return false
	}
	currentSemver, err := semver.NewVersion(current)
	if err != nil {
		return true
	}

	return candidateSemver.GreaterThan(currentSemver)
}
