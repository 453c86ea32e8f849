// Package secgate is the security gate every mutating rule passes through:
// canonical path validation, an explicit command whitelist, a safe file
// copier, and a safe subprocess executor.
//
// Nothing in this package ever routes through a shell, and every filesystem
// mutation is preceded by path validation against the project or session
// root.
package secgate
