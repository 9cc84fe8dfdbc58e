// Package lock is the Exclusion Lock (C4): a named, OS-backed advisory
// file lock under a well-known directory that decides which role — record
// or preview — owns the cameras. Acquiring writes the holder's role and an
// owner token (pid + start time + nonce) into the lock payload so a
// staleness check can recover from a crashed holder without ever stealing
// the lock from a live process.
package lock
