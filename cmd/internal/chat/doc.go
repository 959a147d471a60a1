// Package chat stores two-party conversations: messages keyed by the sorted
// pair of participants, each with a set of upvoters.
package chat
