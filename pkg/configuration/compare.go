package configuration

import (
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"QDataServer/pkg/uid"
)

// VersionCompareFunc compares two versions of one resource. It returns a
// number less than, equal to or greater than zero if the first version is
// older, the same or newer than the second one.
type VersionCompareFunc func(v1, v2 Version) int

var versionCompareFuncs = map[uid.ID]VersionCompareFunc{}

// RegisterVersionCompareFunc registers the function to use for comparing
// versions of the specified resource. Register a custom function when
// DefaultVersionCompare cannot parse the version format used with your
// particular resource.
//
// Registration is write-once per resource; registering twice, registering
// nil or registering DefaultVersionCompare itself is a programmer error.
func RegisterVersionCompareFunc(resource Resource, fn VersionCompareFunc) {
	if _, exists := versionCompareFuncs[resource.ID()]; exists {
		panic("configuration: version compare function already registered for " +
			resource.ID().String())
	}
	if fn == nil {
		panic("configuration: version compare function cannot be nil")
	}
	if reflect.ValueOf(fn).Pointer() == reflect.ValueOf(DefaultVersionCompare).Pointer() {
		panic("configuration: do not register the default version compare function")
	}
	versionCompareFuncs[resource.ID()] = fn
}

// CompareVersions compares two versions of the resource using the
// registered compare function, falling back to DefaultVersionCompare.
func CompareVersions(resource Resource, v1, v2 Version) int {
	if fn, ok := versionCompareFuncs[resource.ID()]; ok {
		return fn(v1, v2)
	}
	return DefaultVersionCompare(v1, v2)
}

var dottedNumbers = regexp.MustCompile(`^[0-9]+(\.[0-9]+)*$`)

// DefaultVersionCompare compares versions specified as a series of
// dot-separated numbers. Both specification strings must match
// ^[0-9]+(\.[0-9]+)*$; callers are responsible for validating upstream.
func DefaultVersionCompare(v1, v2 Version) int {
	if !dottedNumbers.MatchString(v1.Spec()) {
		panic("configuration: malformed version " + strconv.Quote(v1.Spec()))
	}
	if !dottedNumbers.MatchString(v2.Spec()) {
		panic("configuration: malformed version " + strconv.Quote(v2.Spec()))
	}

	sv1 := strings.Split(v1.Spec(), ".")
	sv2 := strings.Split(v2.Spec(), ".")

	count := min(len(sv1), len(sv2))
	for i := 0; i < count; i++ {
		n1, _ := strconv.Atoi(sv1[i])
		n2, _ := strconv.Atoi(sv2[i])
		if cmp := n1 - n2; cmp != 0 {
			return cmp
		}
	}

	return len(sv1) - len(sv2)
}
