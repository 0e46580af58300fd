// Package resolver resolves artifact names override-first: locally supplied
// sources are consulted before the host's ambient resolver, and every name
// that resolves locally maps to exactly one artifact for the lifetime of a
// Resolver.
package resolver
