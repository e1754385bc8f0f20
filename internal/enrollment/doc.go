// Package enrollment owns the lifecycle of biometric templates: enrolling,
// replacing, reading and deleting the four-image enrollment of an identity,
// and resolving submitted image digests back to the identity that owns them.
//
// Manager guarantees that a digest never belongs to two identities. The
// lookup and the write run in one store transaction, and the store's digest
// primary key rejects a racing writer that slips past the lookup. Files of a
// failed enrollment are discarded; files of a replaced enrollment are removed
// after the new one commits.
package enrollment
