// Package geo resolves client addresses to coarse location labels.
//
// Resolvers never fail observably. Any lookup problem yields the configured
// unknown label, which the risk scorer treats as "no location evidence".
package geo
