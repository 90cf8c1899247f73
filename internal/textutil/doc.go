// Package textutil cleans client-supplied names before they reach the
// filesystem.
package textutil
