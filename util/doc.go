// Package util holds small helpers shared by configuration code: size
// strings and pointers for optional settings.
package util
