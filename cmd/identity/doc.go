// Package identity owns duet's user records: the User Directory that maps a
// username to its credential hash, its active token-record ids and its chat
// partners, plus the credential hashing used at signup and login.
//
// Set mutations on a user (token ids, chats) are single atomic
// add-if-absent / remove-if-present steps that report whether anything changed.
package identity
