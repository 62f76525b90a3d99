// Package password hashes account secrets with argon2id and verifies both
// argon2id and legacy bcrypt hashes.
//
// New hashes use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Hasher.NeedsUpgrade] reports true for bcrypt hashes and for argon2id hashes
// produced with weaker parameters, so the caller can rehash after the next
// successful sign-in.
//
// This package never stores or logs plaintexts.
package password
