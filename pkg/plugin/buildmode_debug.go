//go:build plugindebug

package plugin

const debugBuild = true
