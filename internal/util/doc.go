// Package util contains internal helpers shared by the gateway packages.
// Nothing here is part of the public API.
package util
