package plugin

import (
	"fmt"
	"runtime"
)

// buildLibraryName resolves a spec to the file name of the matching shared
// object, using the platform-native library naming convention. Debug builds
// (see the plugindebug build tag) load the debug variant of the library
// where the platform distinguishes one.
func buildLibraryName(path, name string) string {
	if path == "" {
		path = "."
	}
	return fmt.Sprintf(libraryFormat(), path, name)
}

func libraryFormat() string {
	if debugBuild {
		switch runtime.GOOS {
		case "windows":
			return "%s/%sd.dll"
		case "darwin":
			return "%s/lib%s_debug.dylib"
		default:
			return "%s/lib%s.so"
		}
	}
	switch runtime.GOOS {
	case "windows":
		return "%s/%s.dll"
	case "darwin":
		return "%s/lib%s.dylib"
	default:
		return "%s/lib%s.so"
	}
}
