// Package search derives the indexable metadata of a conversation and
// implements the list-view search predicate.
//
// Every function here is pure: titles, summaries and tags are recomputed from
// the message list on each commit and never stored independently of their
// conversation. Matching is case-insensitive substring search over the title,
// summary, last message text and tags.
package search
