package semver

import (
	masterminds "github.com/Masterminds/semver/v3"
)

// SatisfiesRange checks if a version string satisfies a range. An empty range
// accepts any parseable version.
func SatisfiesRange(version, rangeStr string) bool {
	sv, err := masterminds.NewVersion(version)
	if err != nil {
		return false
	}

	if rangeStr == "" {
		return true
	}

	if major, ok := MajorOnly(rangeStr); ok {
		return int(sv.Major()) == major
	}

	constraint, err := masterminds.NewConstraint(rangeStr)
	if err != nil {
		return false
	}
	return constraint.Check(sv)
}

// IsPinnedVersion reports whether the constraint names one exact version
// ("1.2.3") rather than a range.
func IsPinnedVersion(rangeStr string) bool {
	_, err := masterminds.StrictNewVersion(rangeStr)
	return err == nil
}

// Resolve picks the highest version in versions satisfying rangeStr. It
// returns the winning version string and whether any candidate matched.
// Unparseable candidates are skipped.
func Resolve(versions []string, rangeStr string) (string, bool) {
	var best *masterminds.Version
	var bestStr string

	for _, v := range versions {
		if !SatisfiesRange(v, rangeStr) {
			continue
		}
		sv, err := masterminds.NewVersion(v)
		if err != nil {
			continue
		}
		if best == nil || sv.GreaterThan(best) {
			best = sv
			bestStr = v
		}
	}

	return bestStr, best != nil
}
