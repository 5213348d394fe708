// Package secretstore defines the capability interface knox needs from a
// remote secret store, together with the value types and error taxonomy
// shared by every backend.
//
// A store is treated as an opaque key-value service with two extensions:
// versioned values and free-form string tags on each secret. knox never
// reimplements a vault's storage, protocol or version history; it only
// calls the five operations below.
//
// # Capability Set
//
//   - ListProperties: bulk metadata listing (version may be omitted)
//   - GetSecret: value, properties and version of the current version
//   - SetSecret: write a value, creating the secret or cutting a new version
//   - UpdateProperties: replace tags, content type and enabled flag
//   - DeleteSecret: soft delete where the backend supports it
//
// # Implementing a Store
//
//	type MyStore struct {
//	    name   string
//	    client MyStoreClient
//	}
//
//	func (s *MyStore) GetSecret(ctx context.Context, name string) (Secret, error) {
//	    item, err := s.client.Fetch(ctx, name)
//	    if err != nil {
//	        if isNotFound(err) {
//	            return Secret{}, NotFoundError{Store: s.name, Name: name, Err: err}
//	        }
//	        return Secret{}, RemoteError{Store: s.name, Op: "get", Err: err}
//	    }
//	    return Secret{Name: name, Value: item.Value, Properties: item.Properties()}, nil
//	}
//
// # Error Handling
//
// Backends classify SDK errors exactly once into the taxonomy below and
// always keep the original error reachable through Unwrap, so callers can
// show the raw failure message:
//   - NotFoundError: the secret or vault does not exist
//   - ConflictError: name collision on create or move
//   - AuthError: credential acquisition failed or was cancelled
//   - RemoteError: transport and service failures
//
// Stores never retry. Every call is attempted once per user action.
//
// # Security Considerations
//
// Stores must never log secret values (use logging.Secret) and must honour
// context cancellation on every network call.
//
// # Reserved Tags
//
// Two tag names carry meaning for knox and are matched case-sensitively on
// read:
//
//	Folder       virtual folder path, "/" separated ("Prod/Database")
//	DisplayName  label shown instead of the real secret name
//
// Everything else is a free-form tag. Backends store tags as they are
// given; the folder tree built from them lives in internal/projection.
//
// # Backend Notes
//
// Azure Key Vault ignores a properties update that carries no tags, so an
// edit that clears every tag still sends Folder="/". AWS Secrets Manager
// has no per-secret enabled flag or version IDs on listing. GCP Secret
// Manager stores tags as annotations and has no content type.
package secretstore
