// Package contentid derives content identities for uploaded biometric images.
//
// A content identity is the lowercase hex SHA-256 digest of the exact image
// bytes. Two uploads share an identity only when they are byte-for-byte
// identical; the digest says nothing about perceptual similarity.
package contentid
