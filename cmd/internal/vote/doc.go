// Package vote flips a user's upvote on a message.
//
// Each toggle holds the message id in a keylock.Registry between reading the
// upvoter set and writing it back, so concurrent toggles on one message
// serialize while toggles on different messages run in parallel.
package vote
