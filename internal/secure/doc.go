// Package secure holds secret values for the lifetime of one edit session.
//
// Values are kept in a memguard enclave: encrypted at rest in memory,
// protected from swapping where mlock is available, and wiped on Destroy.
// A value is opened only for the instant it is compared or copied out.
//
//	v := secure.NewValue(secret.Value)
//	defer v.Destroy()
//
//	if !v.Equal(form.Password) {
//	    // password changed
//	}
//
// Call Purge once at process exit to wipe every remaining enclave key.
package secure
