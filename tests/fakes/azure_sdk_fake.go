package fakes

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
)

// Operation names used as keys for FakeAzureSecretsClient.Errors and Calls.
const (
	AzureOpList   = "list"
	AzureOpGet    = "get"
	AzureOpSet    = "set"
	AzureOpUpdate = "update"
	AzureOpDelete = "delete"
)

// AzureSecretVersion is one stored version of a fake Key Vault secret.
type AzureSecretVersion struct {
	Version     string
	Value       string
	ContentType string
	Tags        map[string]string
	Enabled     bool
	Created     time.Time
	Updated     time.Time
}

type azureSecretEntry struct {
	versions []*AzureSecretVersion
	deleted  bool
}

// FakeAzureSecretsClient is an in-memory Key Vault that keeps every version
// of every secret. It mirrors two service behaviours callers must cope with:
// setting a value on a soft-deleted name fails with 409, and a properties
// update carrying no tags leaves the stored tags untouched.
type FakeAzureSecretsClient struct {
	mu sync.Mutex

	// VaultURL prefixes secret identifiers.
	VaultURL string
	// PageSize bounds the number of items per listing page. Zero means all.
	PageSize int
	// IgnoreEmptyTagUpdates reproduces the service ignoring an empty tag
	// set on update. Defaults to true.
	IgnoreEmptyTagUpdates bool
	// Errors maps "op:name" (see AzureOp constants) to an error to return.
	// Use an empty name for listing.
	Errors map[string]error
	// Calls counts invocations per operation.
	Calls map[string]int

	secrets map[string]*azureSecretEntry
	seq     int
	now     time.Time
}

// NewFakeAzureSecretsClient creates an empty fake vault.
func NewFakeAzureSecretsClient() *FakeAzureSecretsClient {
	return &FakeAzureSecretsClient{
		VaultURL:              "https://fake.vault.azure.net",
		IgnoreEmptyTagUpdates: true,
		Errors:                make(map[string]error),
		Calls:                 make(map[string]int),
		secrets:               make(map[string]*azureSecretEntry),
		now:                   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// SetError makes op on name fail with err until cleared with a nil err.
func (f *FakeAzureSecretsClient) SetError(op, name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.Errors, op+":"+name)
		return
	}
	f.Errors[op+":"+name] = err
}

// AddSecret seeds a new version of name and returns its version id.
func (f *FakeAzureSecretsClient) AddSecret(name, value string, tags map[string]string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.appendVersion(name, value, "", tags)
	return v.Version
}

// VersionCount returns how many versions name has.
func (f *FakeAzureSecretsClient) VersionCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.secrets[name]
	if !ok {
		return 0
	}
	return len(e.versions)
}

// Latest returns a copy of the newest version of name.
func (f *FakeAzureSecretsClient) Latest(name string) (AzureSecretVersion, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.secrets[name]
	if !ok || e.deleted || len(e.versions) == 0 {
		return AzureSecretVersion{}, false
	}
	v := *e.versions[len(e.versions)-1]
	v.Tags = copyTags(v.Tags)
	return v, true
}

// IsDeleted reports whether name is in the soft-deleted state.
func (f *FakeAzureSecretsClient) IsDeleted(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.secrets[name]
	return ok && e.deleted
}

// Purge removes a soft-deleted secret for good.
func (f *FakeAzureSecretsClient) Purge(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.secrets, name)
}

// NewListSecretPropertiesPager pages over the latest version of every live
// secret, sorted by name.
func (f *FakeAzureSecretsClient) NewListSecretPropertiesPager(options *azsecrets.ListSecretPropertiesOptions) *runtime.Pager[azsecrets.ListSecretPropertiesResponse] {
	f.mu.Lock()
	f.Calls[AzureOpList]++
	err := f.Errors[AzureOpList+":"]
	var items []*azsecrets.SecretProperties
	for _, name := range f.sortedNames() {
		e := f.secrets[name]
		if e.deleted {
			continue
		}
		items = append(items, f.toProperties(name, e.versions[len(e.versions)-1], false))
	}
	pageSize := f.PageSize
	f.mu.Unlock()

	if pageSize <= 0 {
		pageSize = len(items) + 1
	}
	offset := 0
	fetched := false

	return runtime.NewPager(runtime.PagingHandler[azsecrets.ListSecretPropertiesResponse]{
		More: func(azsecrets.ListSecretPropertiesResponse) bool {
			return offset < len(items)
		},
		Fetcher: func(ctx context.Context, _ *azsecrets.ListSecretPropertiesResponse) (azsecrets.ListSecretPropertiesResponse, error) {
			if err != nil {
				return azsecrets.ListSecretPropertiesResponse{}, err
			}
			if fetched && offset >= len(items) {
				return azsecrets.ListSecretPropertiesResponse{}, fmt.Errorf("no more pages")
			}
			fetched = true
			end := offset + pageSize
			if end > len(items) {
				end = len(items)
			}
			page := items[offset:end]
			offset = end
			return azsecrets.ListSecretPropertiesResponse{
				SecretPropertiesListResult: azsecrets.SecretPropertiesListResult{Value: page},
			}, nil
		},
	})
}

// GetSecret returns the given version of name, or the latest when version
// is empty.
func (f *FakeAzureSecretsClient) GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls[AzureOpGet]++
	if err := f.Errors[AzureOpGet+":"+name]; err != nil {
		return azsecrets.GetSecretResponse{}, err
	}

	v, err := f.lookup(name, version)
	if err != nil {
		return azsecrets.GetSecretResponse{}, err
	}
	return azsecrets.GetSecretResponse{Secret: f.toSecret(name, v)}, nil
}

// SetSecret stores a new version of name carrying only the supplied
// properties.
func (f *FakeAzureSecretsClient) SetSecret(ctx context.Context, name string, parameters azsecrets.SetSecretParameters, options *azsecrets.SetSecretOptions) (azsecrets.SetSecretResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls[AzureOpSet]++
	if err := f.Errors[AzureOpSet+":"+name]; err != nil {
		return azsecrets.SetSecretResponse{}, err
	}
	if e, ok := f.secrets[name]; ok && e.deleted {
		return azsecrets.SetSecretResponse{}, AzureConflictError(name)
	}

	var value, contentType string
	if parameters.Value != nil {
		value = *parameters.Value
	}
	if parameters.ContentType != nil {
		contentType = *parameters.ContentType
	}
	v := f.appendVersion(name, value, contentType, derefTags(parameters.Tags))
	return azsecrets.SetSecretResponse{Secret: f.toSecret(name, v)}, nil
}

// UpdateSecretProperties changes the properties of one version.
func (f *FakeAzureSecretsClient) UpdateSecretProperties(ctx context.Context, name string, version string, parameters azsecrets.UpdateSecretPropertiesParameters, options *azsecrets.UpdateSecretPropertiesOptions) (azsecrets.UpdateSecretPropertiesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls[AzureOpUpdate]++
	if err := f.Errors[AzureOpUpdate+":"+name]; err != nil {
		return azsecrets.UpdateSecretPropertiesResponse{}, err
	}

	v, err := f.lookup(name, version)
	if err != nil {
		return azsecrets.UpdateSecretPropertiesResponse{}, err
	}
	if len(parameters.Tags) > 0 || !f.IgnoreEmptyTagUpdates {
		v.Tags = derefTags(parameters.Tags)
	}
	if parameters.ContentType != nil {
		v.ContentType = *parameters.ContentType
	}
	if parameters.SecretAttributes != nil && parameters.SecretAttributes.Enabled != nil {
		v.Enabled = *parameters.SecretAttributes.Enabled
	}
	v.Updated = f.tick()
	return azsecrets.UpdateSecretPropertiesResponse{Secret: f.toSecret(name, v)}, nil
}

// DeleteSecret soft-deletes name.
func (f *FakeAzureSecretsClient) DeleteSecret(ctx context.Context, name string, options *azsecrets.DeleteSecretOptions) (azsecrets.DeleteSecretResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls[AzureOpDelete]++
	if err := f.Errors[AzureOpDelete+":"+name]; err != nil {
		return azsecrets.DeleteSecretResponse{}, err
	}

	e, ok := f.secrets[name]
	if !ok || e.deleted {
		return azsecrets.DeleteSecretResponse{}, AzureNotFoundError(name)
	}
	e.deleted = true
	return azsecrets.DeleteSecretResponse{}, nil
}

func (f *FakeAzureSecretsClient) lookup(name, version string) (*AzureSecretVersion, error) {
	e, ok := f.secrets[name]
	if !ok || e.deleted {
		return nil, AzureNotFoundError(name)
	}
	if version == "" {
		return e.versions[len(e.versions)-1], nil
	}
	for _, v := range e.versions {
		if v.Version == version {
			return v, nil
		}
	}
	return nil, AzureNotFoundError(name)
}

func (f *FakeAzureSecretsClient) appendVersion(name, value, contentType string, tags map[string]string) *AzureSecretVersion {
	e, ok := f.secrets[name]
	if !ok {
		e = &azureSecretEntry{}
		f.secrets[name] = e
	}
	e.deleted = false
	f.seq++
	ts := f.tick()
	v := &AzureSecretVersion{
		Version:     fmt.Sprintf("%032x", f.seq),
		Value:       value,
		ContentType: contentType,
		Tags:        copyTags(tags),
		Enabled:     true,
		Created:     ts,
		Updated:     ts,
	}
	e.versions = append(e.versions, v)
	return v
}

func (f *FakeAzureSecretsClient) tick() time.Time {
	f.now = f.now.Add(time.Second)
	return f.now
}

func (f *FakeAzureSecretsClient) sortedNames() []string {
	names := make([]string, 0, len(f.secrets))
	for name := range f.secrets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f *FakeAzureSecretsClient) toProperties(name string, v *AzureSecretVersion, withVersion bool) *azsecrets.SecretProperties {
	id := fmt.Sprintf("%s/secrets/%s", f.VaultURL, name)
	if withVersion {
		id += "/" + v.Version
	}
	return &azsecrets.SecretProperties{
		ID:          (*azsecrets.ID)(to.Ptr(id)),
		ContentType: optionalString(v.ContentType),
		Tags:        ptrTags(v.Tags),
		Attributes:  attributes(v),
	}
}

func (f *FakeAzureSecretsClient) toSecret(name string, v *AzureSecretVersion) azsecrets.Secret {
	id := fmt.Sprintf("%s/secrets/%s/%s", f.VaultURL, name, v.Version)
	return azsecrets.Secret{
		ID:          (*azsecrets.ID)(to.Ptr(id)),
		Value:       to.Ptr(v.Value),
		ContentType: optionalString(v.ContentType),
		Tags:        ptrTags(v.Tags),
		Attributes:  attributes(v),
	}
}

func attributes(v *AzureSecretVersion) *azsecrets.SecretAttributes {
	created, updated := v.Created, v.Updated
	return &azsecrets.SecretAttributes{
		Enabled: to.Ptr(v.Enabled),
		Created: &created,
		Updated: &updated,
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return to.Ptr(s)
}

func ptrTags(tags map[string]string) map[string]*string {
	if len(tags) == 0 {
		return nil
	}
	out := make(map[string]*string, len(tags))
	for k, v := range tags {
		out[k] = to.Ptr(v)
	}
	return out
}

func derefTags(tags map[string]*string) map[string]string {
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		if v != nil {
			out[k] = *v
		}
	}
	return out
}

func copyTags(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}

// AzureNotFoundError creates a Key Vault 404 response error.
func AzureNotFoundError(secretName string) error {
	return &azcore.ResponseError{
		StatusCode: 404,
		ErrorCode:  "SecretNotFound",
	}
}

// AzureConflictError creates the 409 Key Vault returns when a name is held
// by a soft-deleted secret.
func AzureConflictError(secretName string) error {
	return &azcore.ResponseError{
		StatusCode: 409,
		ErrorCode:  "Conflict",
	}
}

// AzureForbiddenError creates a Key Vault 403 response error.
func AzureForbiddenError() error {
	return &azcore.ResponseError{
		StatusCode: 403,
		ErrorCode:  "Forbidden",
	}
}

// AzureUnauthorizedError creates a Key Vault 401 response error.
func AzureUnauthorizedError() error {
	return &azcore.ResponseError{
		StatusCode: 401,
		ErrorCode:  "Unauthorized",
	}
}

// AzureThrottledError creates a Key Vault 429 response error.
func AzureThrottledError() error {
	return &azcore.ResponseError{
		StatusCode: 429,
		ErrorCode:  "TooManyRequests",
	}
}
