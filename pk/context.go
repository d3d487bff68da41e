package pk

import (
	"context"
	"slices"
)

// ═══════════════════════════════════════════════════════════════════════════════
// Context Keys
// ═══════════════════════════════════════════════════════════════════════════════

// contextKey is the type for context keys in this package.
type contextKey int

const (
	// verboseKey is the context key for verbose mode.
	verboseKey contextKey = iota
	// binDirsKey is the context key for extra executable search directories.
	binDirsKey
)

// ═══════════════════════════════════════════════════════════════════════════════
// Context Accessors (Getters)
// ═══════════════════════════════════════════════════════════════════════════════

// Verbose returns whether verbose mode is enabled in the context.
func Verbose(ctx context.Context) bool {
	if v, ok := ctx.Value(verboseKey).(bool); ok {
		return v
	}
	return false
}

// BinDirsFromContext returns the directories searched for executables
// before PATH, in priority order.
func BinDirsFromContext(ctx context.Context) []string {
	if dirs, ok := ctx.Value(binDirsKey).([]string); ok {
		return slices.Clone(dirs)
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// Context Modifiers (Setters)
// ═══════════════════════════════════════════════════════════════════════════════

// WithVerbose returns a new context with verbose mode set.
func WithVerbose(ctx context.Context, verbose bool) context.Context {
	return context.WithValue(ctx, verboseKey, verbose)
}

// WithBinDir returns a new context that searches dir for executables before
// any directory added earlier and before PATH.
//
//	ctx = pk.WithBinDir(ctx, filepath.Join(root, "node_modules", ".bin"))
//	cmd := pk.Command(ctx, "sass", "--version") // resolves node_modules/.bin/sass
func WithBinDir(ctx context.Context, dir string) context.Context {
	dirs := append([]string{dir}, BinDirsFromContext(ctx)...)
	return context.WithValue(ctx, binDirsKey, dirs)
}
