// Package identity owns users and the error taxonomy shared by every store and service.
//
// Stores return errors from this package (ValidationError, ConflictError, NotFoundError,
// AuthenticationError, StorageError) so the HTTP layer can map them in one place.
package identity
