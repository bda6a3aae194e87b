// Package topic holds the pure model of the topic frequency engine: facet
// keys, label normalization, bigram similarity matching, clustered topic
// groups and top-K ranking.
//
// Nothing in this package performs I/O. Storage lives in package store and
// the concurrency-safe write protocol in package aggregate.
package topic
