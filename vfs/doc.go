// Package vfs is the virtual filesystem facade all tool operations pass
// through. It dispatches list/read/write/delete/stat calls to pluggable
// backends, keeps every path inside a jail root, and implements glob on
// top of the backend listing primitive.
package vfs
