// Package fakes provides test doubles for knox stores and their SDK clients.
//
// The SDK fakes (Azure, AWS, GCP) implement the narrow client interfaces in
// internal/stores and reproduce the service quirks knox depends on, such as
// Key Vault keeping its tags when an update carries none. MemoryStore is a
// versioned in-memory secretstore.Store for tests above the backend layer.
// Fakes are written by hand to give precise control over failures.
//
// Usage:
//
//	store := fakes.NewMemoryStore("corp-kv")
//	store.Seed("db-password", "hunter2", map[string]string{"Folder": "Prod"})
//	store.FailOn("delete", "db-password", secretstore.RemoteError{Store: "corp-kv", Op: "delete"})
//	client, err := vault.New(ctx, store)
package fakes
