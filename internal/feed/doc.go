// Package feed defines the immutable record model for cached feed data.
//
// A cached feed is a derived read optimization and never becomes the source
// of truth for upstream feed state.
package feed
